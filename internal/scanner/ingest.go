package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thefounder-seb/btmg/internal/docs"
)

// EntityID derives the deterministic identity of an artifact: the first
// half of sha256 over root, path, kind and name. Stable under re-scans.
func EntityID(root, relPath string, kind ArtifactKind, name string) string {
	sum := sha256.Sum256([]byte(root + ":" + relPath + ":" + string(kind) + ":" + name))
	return hex.EncodeToString(sum[:len(sum)/2])
}

// ingested tracks one upserted entity for the relationship pass.
type ingested struct {
	id    string
	label string
	m     mapped
}

// ingest runs the two passes: upsert every mapped entity, then resolve
// refs inside the batch and create the declared relationships.
// Individual failures never abort the batch. Entities whose properties
// already match the current head are left untouched so re-scans do not
// churn versions.
func (s *Scanner) ingest(ctx context.Context, identityRoot string, items []mapped, actor string, result *Result) {
	byID := make(map[string]*ingested, len(items))
	byName := make(map[string]*ingested)
	byPath := make(map[string]*ingested)
	var order []*ingested

	for _, m := range items {
		id := EntityID(identityRoot, m.artifact.FilePath, m.artifact.Kind, m.artifact.Name)

		current, err := s.svc.Store().GetCurrent(ctx, id)
		if err == nil && current != nil && docs.PropsEqual(current.State.Props, m.props) {
			result.EntitiesUnchanged++
		} else {
			if _, err := s.svc.Upsert(ctx, m.label, id, m.props, actor); err != nil {
				result.EntitiesSkipped++
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", m.artifact.Kind, m.artifact.Name, err))
				s.logger.Warn("scan: upsert failed",
					slog.String("kind", string(m.artifact.Kind)),
					slog.String("name", m.artifact.Name),
					slog.String("error", err.Error()))
				continue
			}
			result.EntitiesUpserted++
		}

		ing := &ingested{id: id, label: m.label, m: m}
		byID[id] = ing
		if _, taken := byName[m.artifact.Name]; !taken {
			byName[m.artifact.Name] = ing
		}
		if m.artifact.Kind == KindFile {
			byPath[m.artifact.FilePath] = ing
		}
		order = append(order, ing)
	}

	for _, from := range order {
		if len(from.m.artifact.Refs) == 0 {
			continue
		}
		active := make(map[string]struct{})
		if rels, err := s.svc.Store().GetRelationships(ctx, from.id); err == nil {
			for _, rel := range rels {
				if rel.Direction == "outgoing" {
					active[rel.Type+"\x00"+rel.ToID] = struct{}{}
				}
			}
		}
		for _, ref := range from.m.artifact.Refs {
			relType, declared := edgeTypeForRef[ref.Kind]
			if !declared {
				continue
			}
			to := resolveRef(ref.Target, byID, byName, byPath)
			if to == nil {
				continue
			}
			if _, exists := active[relType+"\x00"+to.id]; exists {
				continue
			}
			err := s.svc.Relate(ctx, from.id, to.id, relType, from.label, to.label, nil, actor)
			if err != nil {
				// The schema may not declare this ref kind between these
				// labels; tolerated.
				s.logger.Debug("scan: relate skipped",
					slog.String("type", relType),
					slog.String("from", from.m.artifact.Name),
					slog.String("to", to.m.artifact.Name),
					slog.String("error", err.Error()))
				continue
			}
			active[relType+"\x00"+to.id] = struct{}{}
			result.RelationshipsCreated++
		}
	}
}

// resolveRef looks a ref target up in this batch: direct id, then name,
// then file path. Relative-import prefixes are stripped for the path
// fallback.
func resolveRef(target string, byID, byName, byPath map[string]*ingested) *ingested {
	if hit, ok := byID[target]; ok {
		return hit
	}
	if hit, ok := byName[target]; ok {
		return hit
	}
	trimmed := strings.TrimPrefix(target, "./")
	if hit, ok := byPath[trimmed]; ok {
		return hit
	}
	if hit, ok := byName[trimmed]; ok {
		return hit
	}
	return nil
}
