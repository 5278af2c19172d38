package model

import "time"

type InventoryItem struct {
	ID             int64      `json:"id"`
	HouseholdID    int64      `json:"household_id"`
	CategoryID     *int64     `json:"category_id"`
	Name           string     `json:"name"`
	Quantity       float64    `json:"quantity"`
	Unit           string     `json:"unit"`
	MinStock       *float64   `json:"min_stock"`
	ExpirationDate *time.Time `json:"expiration_date"`
	Notes          *string    `json:"notes"`
	LastUpdatedBy  int64      `json:"last_updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LowStock reports whether the item has fallen below its minimum stock
// threshold. Items without a threshold are never low.
func (i *InventoryItem) LowStock() bool {
	return i.MinStock != nil && i.Quantity < *i.MinStock
}
