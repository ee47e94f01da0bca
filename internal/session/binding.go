// Package session binds the in-memory cart store to durable storage under a
// key derived from the current actor, and keeps one cart engine alive per
// hosting UI session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartengine/internal/domain"
	"github.com/utafrali/cartengine/internal/event"
	"github.com/utafrali/cartengine/internal/repository"
	"github.com/utafrali/cartengine/internal/store"
	apperrors "github.com/utafrali/cartengine/pkg/errors"
)

// persistTimeout bounds each write-through storage access.
const persistTimeout = 5 * time.Second

// Binding is the identity-scoped persistence adapter. It moves through the
// states Uninitialized -> BoundToGuest | BoundToUser and then between the two
// bound states, driven solely by OnActorChanged notifications; it never
// re-enters Uninitialized. On every store change it writes the full line set
// through to the slot of the current actor.
//
// Storage failures are caught and logged, never surfaced to the mutation call
// stack: the in-memory state stays authoritative for the session and the next
// mutation retries the write.
type Binding struct {
	store  *store.Store
	repo   repository.CartRepository
	events *event.Producer
	logger *slog.Logger

	// mu serializes actor-change handling; actorMu guards the bound/actor
	// pair, which the write-through path reads while the store lock is held.
	mu      sync.Mutex
	actorMu sync.Mutex
	bound   bool
	actor   Actor
}

// NewBinding creates a binding and subscribes it to the store's change feed.
func NewBinding(st *store.Store, repo repository.CartRepository, events *event.Producer, logger *slog.Logger) *Binding {
	b := &Binding{
		store:  st,
		repo:   repo,
		events: events,
		logger: logger,
	}
	st.Subscribe(b.persist)
	return b
}

// Actor returns the currently bound actor and whether any actor has been
// observed yet.
func (b *Binding) Actor() (Actor, bool) {
	b.actorMu.Lock()
	defer b.actorMu.Unlock()
	return b.actor, b.bound
}

// OnActorChanged is the explicit entry point the hosting layer calls whenever
// the current actor may have changed. Re-reporting the same actor is a no-op,
// so callers may invoke it on every request without side effects.
//
// On a genuine transition the slot of the new actor decides what happens:
//   - a saved cart exists: it is loaded, replacing the in-memory state;
//   - nothing saved and the actor is authenticated: the cart is cleared, a
//     freshly authenticated user with no saved cart starts empty;
//   - nothing saved and the actor is the guest: the in-memory state is left
//     untouched, so work done before any identity signal is never lost.
func (b *Binding) OnActorChanged(ctx context.Context, actor Actor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.actorMu.Lock()
	sameActor := b.bound && b.actor == actor
	if !sameActor {
		// Rebind before touching storage so any concurrent write-through
		// already targets the new actor's slot.
		b.bound = true
		b.actor = actor
	}
	b.actorMu.Unlock()

	if sameActor {
		return
	}

	lines, err := b.repo.Load(ctx, actor.Key())
	if err == nil {
		b.store.Load(lines)
		b.logger.InfoContext(ctx, "restored saved cart",
			slog.String("actor", actor.String()),
			slog.Int("lines", len(lines)),
		)
		return
	}

	if !errors.Is(err, apperrors.ErrNotFound) {
		// A failed or corrupt read is treated as "no saved cart".
		b.logger.WarnContext(ctx, "failed to load saved cart, treating slot as empty",
			slog.String("actor", actor.String()),
			slog.String("error", err.Error()),
		)
	}

	if actor.IsGuest() {
		b.logger.DebugContext(ctx, "no saved guest cart, keeping in-memory state",
			slog.String("actor", actor.String()),
		)
		return
	}

	b.store.Clear()
	b.logger.InfoContext(ctx, "no saved cart for user, starting empty",
		slog.String("actor", actor.String()),
	)
}

// persist is the store change subscriber. It runs synchronously inside the
// mutation, which keeps writes in issuance order; an empty cart deletes the
// slot instead of storing an empty payload. Before the first actor
// observation writes land in the guest slot, matching the guest-until-proven-
// otherwise lifecycle of a fresh session.
func (b *Binding) persist(st domain.State) {
	b.actorMu.Lock()
	key := b.actor.Key()
	b.actorMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if st.IsEmpty() {
		if err := b.repo.Delete(ctx, key); err != nil {
			b.logger.ErrorContext(ctx, "failed to delete cart slot",
				slog.String("cart_key", key),
				slog.String("error", err.Error()),
			)
		}
		if err := b.events.PublishCartCleared(ctx, key); err != nil {
			b.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
				slog.String("cart_key", key),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := b.repo.Save(ctx, key, st.Lines); err != nil {
		// Best effort: the in-memory cart keeps serving this session, the
		// next mutation writes the full state again.
		b.logger.ErrorContext(ctx, "failed to persist cart, serving from memory",
			slog.String("cart_key", key),
			slog.String("error", err.Error()),
		)
	}
	if err := b.events.PublishCartUpdated(ctx, key, st); err != nil {
		b.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("cart_key", key),
			slog.String("error", err.Error()),
		)
	}
}
