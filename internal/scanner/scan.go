package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/memory"
)

// cloneTimeout bounds the shallow clone of a remote target.
const cloneTimeout = 2 * time.Minute

// Options configures a scanner.
type Options struct {
	Include      []string
	Exclude      []string
	Languages    []Language
	Mappings     []MappingRule
	ExtraParsers []LanguageParser
	RemoteDepth  int
	RemoteBranch string
}

// Scanner drives the discover -> fingerprint -> parse -> map -> ingest
// pipeline against a filesystem root or a remote repository.
type Scanner struct {
	svc     *memory.Service
	opts    Options
	parsers *parserRegistry
	logger  *slog.Logger
}

// New creates a scanner. Mapping rules are validated up front.
func New(svc *memory.Service, opts Options, logger *slog.Logger) (*Scanner, error) {
	if err := validateMappings(opts.Mappings); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		svc:     svc,
		opts:    opts,
		parsers: newParserRegistry(opts.ExtraParsers),
		logger:  logger,
	}, nil
}

// Scan runs the pipeline. target is a local directory or a remote git
// URL (cloned shallow into a temp dir that is removed unconditionally).
// Dry runs go through mapping but neither mutate the graph nor persist
// fingerprints.
func (s *Scanner) Scan(ctx context.Context, target string, dryRun bool, actor string) (*Result, error) {
	result := &Result{Target: target, DryRun: dryRun}

	root := target
	if isRemote(target) {
		tmp, err := s.cloneRemote(ctx, target)
		if tmp != "" {
			defer os.RemoveAll(tmp)
		}
		if err != nil {
			return nil, err
		}
		root = tmp
	} else {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", apperr.ErrTarget, target)
		}
	}

	prior, err := loadFingerprints(root)
	if err != nil {
		return nil, err
	}

	disc, err := s.discover(ctx, root, prior)
	if err != nil {
		return nil, err
	}
	result.FilesDiscovered = len(disc.fingerprints)
	result.FilesRemoved = len(disc.removed)

	var artifacts []RawArtifact
	for _, f := range disc.parseable {
		arts, err := s.parsers.parse(f)
		if err != nil {
			// One bad file never aborts the scan.
			s.logger.Warn("scan: parse failed",
				slog.String("path", f.RelativePath),
				slog.String("error", err.Error()))
			continue
		}
		result.FilesParsed++
		artifacts = append(artifacts, arts...)
	}
	result.Artifacts = len(artifacts)

	items, unmapped := s.applyMappings(artifacts)
	result.Unmapped = len(unmapped)

	if !dryRun {
		// Identity stays stable across temp-dir clones by keying on the
		// original target.
		s.ingest(ctx, target, items, actor, result)
		if err := saveFingerprints(root, disc.fingerprints); err != nil {
			return result, err
		}
	}

	s.logger.Info("scan: completed", slog.String("target", target), slog.String("result", result.String()))
	return result, nil
}

func isRemote(target string) bool {
	return strings.Contains(target, "://") || strings.HasPrefix(target, "git@")
}

// cloneRemote shallow-clones target into a fresh temp dir.
func (s *Scanner) cloneRemote(ctx context.Context, target string) (string, error) {
	tmp, err := os.MkdirTemp("", "btmg-scan-*")
	if err != nil {
		return "", fmt.Errorf("scanner: temp dir: %w", err)
	}

	depth := s.opts.RemoteDepth
	if depth <= 0 {
		depth = 1
	}
	args := []string{"clone", "--depth", fmt.Sprint(depth), "--single-branch"}
	if s.opts.RemoteBranch != "" {
		args = append(args, "--branch", s.opts.RemoteBranch)
	}
	args = append(args, target, tmp)

	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()
	cmd := exec.CommandContext(cloneCtx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return tmp, fmt.Errorf("%w: clone %s: %v: %s", apperr.ErrTarget, target, err, strings.TrimSpace(string(out)))
	}
	return tmp, nil
}
