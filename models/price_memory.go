package models

// Status is the classification of a listing's price against the previous run.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusUnchanged Status = "UNCHANGED"
	StatusIncreased Status = "INCREASED"
	StatusDecreased Status = "DECREASED"
)

// PriceMemory maps a listing identity to the last price seen for it.
type PriceMemory map[string]float64

// MemoryUpdate is the change a classification asks to make to PriceMemory.
// Changed is false when the stored price already equals Price.
type MemoryUpdate struct {
	CarID   string
	Price   float64
	Changed bool
}

// Clone returns an independent copy of m. A nil memory clones to an empty one.
func (m PriceMemory) Clone() PriceMemory {
	out := make(PriceMemory, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Apply folds u into m.
func (m PriceMemory) Apply(u MemoryUpdate) {
	if u.Changed {
		m[u.CarID] = u.Price
	}
}
