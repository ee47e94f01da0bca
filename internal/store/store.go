// Package store owns the authoritative in-memory cart state and the pure
// reducer functions that compute new state from mutation requests. Persistence
// is the subscriber's responsibility; the store itself never performs I/O.
package store

import (
	"sync"

	"github.com/utafrali/cartengine/internal/domain"
)

// VariantUpdate is a partial patch of a line's variant and variant-display
// fields. Nil fields are left unchanged.
type VariantUpdate struct {
	ColorID    *string
	ColorLabel *string
	HexCode    *string
	Size       *string
}

// ChangeFunc is invoked synchronously after every successful mutation with a
// snapshot of the new state. Subscribers must not block for long: the store's
// lock is held while they run, which is also what guarantees that write-through
// persistence observes mutations in issuance order.
type ChangeFunc func(domain.State)

// Store maintains one cart state and provides the six total-preserving
// mutations. Every mutation recomputes the derived totals before returning, so
// TotalQuantity and TotalPrice can never diverge from Lines.
type Store struct {
	mu       sync.Mutex
	state    domain.State
	onChange []ChangeFunc
}

// New creates a store holding an empty cart.
func New() *Store {
	return &Store{state: domain.Empty()}
}

// Subscribe registers a callback fired after every state change.
func (s *Store) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// State returns a snapshot of the current cart state.
func (s *Store) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddLine adds qty units of the given line. If a line with the same identity
// already exists its quantity is incremented and every other field is left
// unchanged: the first unit price and display fields recorded for an identity
// win, repeat adds never reprice. A qty below 1 is clamped to 1; the HTTP
// boundary rejects such input before it reaches the store, the clamp only
// protects invariant 3 against misuse of the in-process API.
func (s *Store) AddLine(line domain.Line, qty int) domain.State {
	return s.apply(func(st domain.State) domain.State {
		return addLine(st, line, qty)
	})
}

// RemoveLine deletes the line matching the identity. Removing an absent
// identity is a no-op, not an error.
func (s *Store) RemoveLine(id domain.Identity) domain.State {
	return s.apply(func(st domain.State) domain.State {
		return removeLine(st, id)
	})
}

// SetQuantity replaces the quantity of the matching line. A qty of zero or
// below behaves exactly as RemoveLine. No-op if the identity is absent.
func (s *Store) SetQuantity(id domain.Identity, qty int) domain.State {
	return s.apply(func(st domain.State) domain.State {
		return setQuantity(st, id, qty)
	})
}

// UpdateVariant patches the variant fields of the matching line in place,
// preserving its quantity, unit price, and position. When the patched line
// collides with a pre-existing line that already has the resulting identity,
// the two merge: quantities sum into the earlier line, whose unit price and
// position win. No-op if the identity is absent.
func (s *Store) UpdateVariant(id domain.Identity, upd VariantUpdate) domain.State {
	return s.apply(func(st domain.State) domain.State {
		return updateVariant(st, id, upd)
	})
}

// Clear resets to the empty cart. The checkout collaborator calls this once
// after a successful order placement.
func (s *Store) Clear() domain.State {
	return s.apply(func(domain.State) domain.State {
		return domain.Empty()
	})
}

// Load replaces the cart lines wholesale; it is used by the persistence
// binding when restoring a saved cart and does not merge with the in-memory
// state. The input is normalized so a tampered or stale payload can never
// violate the cart invariants.
func (s *Store) Load(lines []domain.Line) domain.State {
	return s.apply(func(domain.State) domain.State {
		return load(lines)
	})
}

// apply runs a reducer under the lock, recomputes totals, installs the new
// state, and notifies subscribers with a snapshot.
func (s *Store) apply(reduce func(domain.State) domain.State) domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := reduce(s.state.Clone())
	next.Recompute()
	s.state = next

	snapshot := next.Clone()
	for _, fn := range s.onChange {
		fn(snapshot)
	}
	return next.Clone()
}

// --- Reducers ---
//
// Each reducer is a pure function of (state, request); totals are recomputed
// by the caller afterwards.

func addLine(st domain.State, line domain.Line, qty int) domain.State {
	if qty < 1 {
		qty = 1
	}

	if i := st.FindLine(line.Identity()); i >= 0 {
		st.Lines[i].Quantity += qty
		return st
	}

	line.Quantity = qty
	st.Lines = append(st.Lines, line)
	return st
}

func removeLine(st domain.State, id domain.Identity) domain.State {
	i := st.FindLine(id)
	if i < 0 {
		return st
	}
	st.Lines = append(st.Lines[:i], st.Lines[i+1:]...)
	return st
}

func setQuantity(st domain.State, id domain.Identity, qty int) domain.State {
	if qty <= 0 {
		return removeLine(st, id)
	}
	if i := st.FindLine(id); i >= 0 {
		st.Lines[i].Quantity = qty
	}
	return st
}

func updateVariant(st domain.State, id domain.Identity, upd VariantUpdate) domain.State {
	i := st.FindLine(id)
	if i < 0 {
		return st
	}

	line := st.Lines[i]
	if upd.ColorID != nil {
		line.ColorID = *upd.ColorID
	}
	if upd.ColorLabel != nil {
		line.ColorLabel = *upd.ColorLabel
	}
	if upd.HexCode != nil {
		line.HexCode = *upd.HexCode
	}
	if upd.Size != nil {
		line.Size = *upd.Size
	}

	// The patch may land on an identity another line already owns. Merge the
	// quantities into the earlier-positioned of the two lines so no two lines
	// ever share an identity; the survivor keeps its own price and position.
	if j := st.FindLine(line.Identity()); j >= 0 && j != i {
		if j < i {
			st.Lines[j].Quantity += line.Quantity
			st.Lines = append(st.Lines[:i], st.Lines[i+1:]...)
			return st
		}
		line.Quantity += st.Lines[j].Quantity
		st.Lines[i] = line
		st.Lines = append(st.Lines[:j], st.Lines[j+1:]...)
		return st
	}

	st.Lines[i] = line
	return st
}

// load normalizes a persisted payload: lines with a non-positive quantity are
// dropped and duplicate identities are merged into their first occurrence.
func load(lines []domain.Line) domain.State {
	st := domain.Empty()
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := st.FindLine(l.Identity()); i >= 0 {
			st.Lines[i].Quantity += l.Quantity
			continue
		}
		st.Lines = append(st.Lines, l)
	}
	return st
}
