package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/graph"
)

// PropertyChange is one property delta between two states. A nil Old
// means the property was added; a nil New means it was removed.
type PropertyChange struct {
	Property string `json:"property"`
	Old      any    `json:"old,omitempty"`
	New      any    `json:"new,omitempty"`
}

// StateDiff is the set difference between two states' user properties.
type StateDiff struct {
	EntityID    string           `json:"entityId"`
	FromVersion int              `json:"fromVersion"`
	ToVersion   int              `json:"toVersion"`
	Changes     []PropertyChange `json:"changes"`
}

// DiffStates compares the user properties of two states, skipping
// underscore-prefixed temporal keys, with deep-structural equality.
func DiffStates(oldState, newState *graph.State) *StateDiff {
	diff := &StateDiff{
		EntityID:    oldState.EntityID,
		FromVersion: oldState.Version,
		ToVersion:   newState.Version,
		Changes:     []PropertyChange{},
	}
	if diff.EntityID == "" {
		diff.EntityID = newState.EntityID
	}

	keys := make(map[string]struct{}, len(oldState.Props)+len(newState.Props))
	for k := range oldState.Props {
		keys[k] = struct{}{}
	}
	for k := range newState.Props {
		keys[k] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		if strings.HasPrefix(k, "_") {
			continue
		}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, k := range ordered {
		oldVal, hadOld := oldState.Props[k]
		newVal, hasNew := newState.Props[k]
		switch {
		case hadOld && hasNew:
			if !reflect.DeepEqual(oldVal, newVal) {
				diff.Changes = append(diff.Changes, PropertyChange{Property: k, Old: oldVal, New: newVal})
			}
		case hadOld:
			diff.Changes = append(diff.Changes, PropertyChange{Property: k, Old: oldVal})
		default:
			diff.Changes = append(diff.Changes, PropertyChange{Property: k, New: newVal})
		}
	}
	return diff
}

// Diff compares two versions of one entity.
func (s *Service) Diff(ctx context.Context, id string, fromVersion, toVersion int) (*StateDiff, error) {
	history, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: entity %s", apperr.ErrNotFound, id)
	}
	var from, to *graph.State
	for i := range history {
		st := &history[i]
		if st.Version == fromVersion {
			from = st
		}
		if st.Version == toVersion {
			to = st
		}
	}
	if from == nil {
		return nil, fmt.Errorf("%w: %s version %d", apperr.ErrNotFound, id, fromVersion)
	}
	if to == nil {
		return nil, fmt.Errorf("%w: %s version %d", apperr.ErrNotFound, id, toVersion)
	}
	return DiffStates(from, to), nil
}

// Changelog walks the version chain oldest-first and diffs each adjacent
// pair.
func (s *Service) Changelog(ctx context.Context, id string) ([]StateDiff, error) {
	history, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: entity %s", apperr.ErrNotFound, id)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Version < history[j].Version })

	out := make([]StateDiff, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		out = append(out, *DiffStates(&history[i-1], &history[i]))
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
