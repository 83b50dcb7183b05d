package invalidation

import (
	"context"
	"fmt"
	"slices"
)

// Utils wraps an Engine with the calls data-mutation handlers make after a
// successful write.
type Utils struct {
	engine *Engine
	source string
}

// NewUtils returns helpers that queue events on engine tagged with source.
func NewUtils(engine *Engine, source string) *Utils {
	if engine == nil {
		panic("invalidation engine cannot be nil")
	}
	if source == "" {
		source = "api"
	}
	return &Utils{engine: engine, source: source}
}

// InvalidateUser queues a user event for id. action must be create, update,
// delete or bulk_update.
func (u *Utils) InvalidateUser(ctx context.Context, id string, action Action, affectedFields ...string) error {
	ev := Event{
		Domain:         DomainUser,
		Action:         action,
		EntityID:       id,
		AffectedFields: affectedFields,
		Source:         u.source,
	}
	if ev.Kind() == KindUnknown {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Key())
	}
	return u.engine.QueueInvalidation(ctx, ev)
}

// InvalidateUsers queues one bulk update covering ids.
func (u *Utils) InvalidateUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return u.engine.QueueInvalidation(ctx, Event{
		Domain:   DomainUser,
		Action:   ActionBulkUpdate,
		Source:   u.source,
		Metadata: map[string]any{"user_ids": slices.Clone(ids), "count": len(ids)},
	})
}

// InvalidatePerformance queues a performance update.
func (u *Utils) InvalidatePerformance(ctx context.Context) error {
	return u.engine.QueueInvalidation(ctx, Event{
		Domain: DomainPerformance,
		Action: ActionUpdate,
		Source: u.source,
	})
}

// InvalidateAPIResponses queues an API response change.
func (u *Utils) InvalidateAPIResponses(ctx context.Context) error {
	return u.engine.QueueInvalidation(ctx, Event{
		Domain: DomainAPI,
		Action: ActionResponseChange,
		Source: u.source,
	})
}

// InvalidateAll queues a deployment event, which clears every cache.
func (u *Utils) InvalidateAll(ctx context.Context) error {
	return u.engine.QueueInvalidation(ctx, Event{
		Domain: DomainGlobal,
		Action: ActionDeployment,
		Source: u.source,
	})
}
