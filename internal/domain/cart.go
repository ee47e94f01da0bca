package domain

// Identity is the tuple that makes a cart line unique: the product plus the
// selected color and size variants. Display fields never participate in it.
type Identity struct {
	ProductID string `json:"product_id"`
	ColorID   string `json:"color_id,omitempty"`
	Size      string `json:"size,omitempty"`
}

// Line is one purchasable configuration in the cart. UnitPrice is a snapshot
// in minor currency units (cents) taken when the line was created; it is not
// re-fetched from the catalog on later mutations.
type Line struct {
	ProductID string `json:"product_id"`
	ColorID   string `json:"color_id,omitempty"`
	Size      string `json:"size,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`

	// Display-only fields; they travel with the line for rendering but are
	// not part of its identity.
	Name       string `json:"name,omitempty"`
	ColorLabel string `json:"color_label,omitempty"`
	HexCode    string `json:"hex_code,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Identity returns the identity tuple of the line.
func (l Line) Identity() Identity {
	return Identity{ProductID: l.ProductID, ColorID: l.ColorID, Size: l.Size}
}

// Subtotal returns the line subtotal in cents.
func (l Line) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// State is the cart aggregate. TotalQuantity and TotalPrice are derived from
// Lines and recomputed after every mutation; they are never accepted as
// independent inputs.
type State struct {
	Lines         []Line `json:"lines"`
	TotalQuantity int    `json:"total_quantity"`
	TotalPrice    int64  `json:"total_price"`
}

// Empty returns an empty cart state.
func Empty() State {
	return State{Lines: []Line{}}
}

// FindLine returns the index of the line matching the given identity, or -1.
func (s *State) FindLine(id Identity) int {
	for i := range s.Lines {
		if s.Lines[i].Identity() == id {
			return i
		}
	}
	return -1
}

// Recompute rederives TotalQuantity and TotalPrice from Lines.
func (s *State) Recompute() {
	var qty int
	var price int64
	for _, l := range s.Lines {
		qty += l.Quantity
		price += l.Subtotal()
	}
	s.TotalQuantity = qty
	s.TotalPrice = price
}

// Clone returns a deep copy of the state so callers can hand snapshots out
// without exposing the backing Lines slice to mutation.
func (s *State) Clone() State {
	cp := *s
	cp.Lines = make([]Line, len(s.Lines))
	copy(cp.Lines, s.Lines)
	return cp
}

// IsEmpty reports whether the cart holds no lines.
func (s *State) IsEmpty() bool {
	return len(s.Lines) == 0
}
