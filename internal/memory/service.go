// Package memory is the mutation pipeline and temporal read surface over
// the graph store. Every write is validated against the schema registry,
// versioned, and audited in a single transaction.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/schema"
)

// EventPublisher receives a notification after each committed mutation.
type EventPublisher interface {
	PublishEntityEvent(kind, id, label string)
}

// Service coordinates the registry and the store.
type Service struct {
	registry *schema.Registry
	store    *graph.Store
	events   EventPublisher
	// now is swappable in tests.
	now func() time.Time
}

// NewService creates a mutation pipeline over registry and store.
// events may be nil.
func NewService(registry *schema.Registry, store *graph.Store, events EventPublisher) *Service {
	return &Service{
		registry: registry,
		store:    store,
		events:   events,
		now:      time.Now,
	}
}

// Registry exposes the compiled schema for read-only consumers.
func (s *Service) Registry() *schema.Registry { return s.registry }

// Store exposes the underlying temporal store for read-only consumers.
func (s *Service) Store() *graph.Store { return s.store }

// UpsertResult reports the outcome of an Upsert.
type UpsertResult struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Created bool   `json:"created"`
}

// Upsert validates props against the label's schema and either creates
// the entity or appends the next state version. An empty id requests a
// fresh one.
func (s *Service) Upsert(ctx context.Context, label, id string, props map[string]any, actor string) (*UpsertResult, error) {
	validate, err := s.registry.Node(label)
	if err != nil {
		return nil, err
	}
	normalized, verr := validate(props)
	if verr != nil {
		return nil, verr
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	current, err := s.store.GetCurrent(ctx, id)
	if err != nil {
		return nil, err
	}

	if current == nil {
		if entity, err := s.store.GetEntity(ctx, id); err != nil {
			return nil, err
		} else if entity != nil {
			return nil, fmt.Errorf("%w: entity %s is deleted", apperr.ErrNotFound, id)
		}
		if err := s.store.CreateEntity(ctx, id, label, normalized, actor, now, uuid.NewString()); err != nil {
			return nil, err
		}
		s.publish("created", id, label)
		return &UpsertResult{ID: id, Version: 1, Created: true}, nil
	}

	changes := DiffStates(&current.State, &graph.State{Props: normalized})
	changesJSON, _ := json.Marshal(changes.Changes)
	if err := s.store.UpdateEntity(ctx, id, normalized, actor, now, uuid.NewString(), string(changesJSON)); err != nil {
		return nil, err
	}
	s.publish("updated", id, label)
	return &UpsertResult{ID: id, Version: current.State.Version + 1, Created: false}, nil
}

// Delete soft-deletes an entity. Deleting an already-deleted entity
// succeeds without effect.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	if err := s.store.SoftDeleteEntity(ctx, id, actor, s.now(), uuid.NewString()); err != nil {
		return err
	}
	s.publish("deleted", id, "")
	return nil
}

// Relate validates edge properties against the (fromLabel, type, toLabel)
// declaration and opens the edge.
func (s *Service) Relate(ctx context.Context, fromID, toID, relType, fromLabel, toLabel string, props map[string]any, actor string) error {
	validate, err := s.registry.Edge(fromLabel, relType, toLabel)
	if err != nil {
		return err
	}
	normalized, verr := validate(props)
	if verr != nil {
		return verr
	}
	if err := s.store.CreateRelationship(ctx, fromID, toID, relType, normalized, actor, s.now(), uuid.NewString()); err != nil {
		return err
	}
	s.publish("related", fromID, fromLabel)
	return nil
}

// Unrelate closes the active edge. A missing edge is tolerated silently.
func (s *Service) Unrelate(ctx context.Context, fromID, toID, relType, actor string) error {
	err := s.store.CloseRelationship(ctx, fromID, toID, relType, actor, s.now(), uuid.NewString())
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	s.publish("unrelated", fromID, "")
	return nil
}

// Validate runs the label's validator without touching the store.
func (s *Service) Validate(label string, props map[string]any) (map[string]any, error) {
	validate, err := s.registry.Node(label)
	if err != nil {
		return nil, err
	}
	normalized, verr := validate(props)
	if verr != nil {
		return nil, verr
	}
	return normalized, nil
}

func (s *Service) publish(kind, id, label string) {
	if s.events != nil {
		s.events.PublishEntityEvent(kind, id, label)
	}
}
