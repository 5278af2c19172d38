package model

import "time"

// EntryState is the explicit state of a shopping list item, derived from its
// bought/added/processing flags. An item leaves the list entirely (row
// deleted) once reconciliation completes, so there is no terminal state here.
type EntryState string

const (
	// StatePending: neither flag set.
	StatePending EntryState = "pending"
	// StateBought: purchased but not yet marked for inventory.
	StateBought EntryState = "bought"
	// StateStaged: marked for inventory but not yet purchased.
	StateStaged EntryState = "staged"
	// StateReady: both flags set, merge not yet claimed.
	StateReady EntryState = "ready"
	// StateProcessing: a reconciliation merge is in flight.
	StateProcessing EntryState = "processing"
)

type ShoppingListItem struct {
	ID                 int64    `json:"id"`
	HouseholdID        int64    `json:"household_id"`
	Name               string   `json:"name"`
	Quantity           *float64 `json:"quantity"`
	Unit               *string  `json:"unit"`
	CategoryID         *int64   `json:"category_id"`
	LinkedInventoryID  *int64   `json:"linked_inventory_item_id"`
	IsBought           bool     `json:"is_bought"`
	IsAddedToInventory bool     `json:"is_added_to_inventory"`
	IsProcessing       bool     `json:"is_processing"`
	AddedBy            int64    `json:"added_by"`
	CreatedAt          time.Time `json:"created_at"`
}

// State folds the two flags and the processing guard into one explicit state.
func (i *ShoppingListItem) State() EntryState {
	switch {
	case i.IsProcessing:
		return StateProcessing
	case i.IsBought && i.IsAddedToInventory:
		return StateReady
	case i.IsBought:
		return StateBought
	case i.IsAddedToInventory:
		return StateStaged
	default:
		return StatePending
	}
}

// MergeQuantity is the amount folded into inventory: the entry's quantity, or
// 1 when unspecified.
func (i *ShoppingListItem) MergeQuantity() float64 {
	if i.Quantity == nil {
		return 1
	}
	return *i.Quantity
}

// DefaultUnit is used when an entry with no unit is merged as a new inventory item.
const DefaultUnit = "piece"

// MergeUnit is the unit for a newly created inventory item.
func (i *ShoppingListItem) MergeUnit() string {
	if i.Unit == nil || *i.Unit == "" {
		return DefaultUnit
	}
	return *i.Unit
}
