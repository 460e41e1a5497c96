package services

import (
	"math"

	"carwatch/models"
)

// Classification is the outcome of comparing an observed price to memory.
// PreviousPrice is set for INCREASED and DECREASED.
type Classification struct {
	Status        models.Status
	PreviousPrice float64
}

// Classify compares price against the last price remembered for carID and
// returns the status plus the update to fold into memory. It does not modify
// memory. Prices are compared with exact equality; NaN is treated as an
// unparseable price of zero.
func Classify(carID string, price float64, memory models.PriceMemory) (Classification, models.MemoryUpdate) {
	if math.IsNaN(price) {
		price = 0
	}
	previous, seen := memory[carID]

	switch {
	case !seen:
		return Classification{Status: models.StatusNew},
			models.MemoryUpdate{CarID: carID, Price: price, Changed: true}
	case price == previous:
		return Classification{Status: models.StatusUnchanged},
			models.MemoryUpdate{CarID: carID, Price: price}
	case price < previous:
		return Classification{Status: models.StatusDecreased, PreviousPrice: previous},
			models.MemoryUpdate{CarID: carID, Price: price, Changed: true}
	default:
		return Classification{Status: models.StatusIncreased, PreviousPrice: previous},
			models.MemoryUpdate{CarID: carID, Price: price, Changed: true}
	}
}
