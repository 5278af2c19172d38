package store

import (
	"database/sql"
	"fmt"

	"github.com/larder-app/larder/internal/model"
)

type ShoppingListStore struct {
	db *sql.DB
}

func NewShoppingListStore(db *sql.DB) *ShoppingListStore {
	return &ShoppingListStore{db: db}
}

func scanShoppingListItem(scanner interface{ Scan(...any) error }) (*model.ShoppingListItem, error) {
	var item model.ShoppingListItem
	var quantity sql.NullFloat64
	var unit sql.NullString
	var categoryID, linkedID sql.NullInt64
	var bought, added, processing int

	err := scanner.Scan(
		&item.ID, &item.HouseholdID, &item.Name, &quantity, &unit,
		&categoryID, &linkedID, &bought, &added, &processing,
		&item.AddedBy, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if quantity.Valid {
		item.Quantity = &quantity.Float64
	}
	if unit.Valid {
		item.Unit = &unit.String
	}
	if categoryID.Valid {
		item.CategoryID = &categoryID.Int64
	}
	if linkedID.Valid {
		item.LinkedInventoryID = &linkedID.Int64
	}
	item.IsBought = bought != 0
	item.IsAddedToInventory = added != 0
	item.IsProcessing = processing != 0
	return &item, nil
}

const shoppingListCols = `id, household_id, name, quantity, unit, category_id, linked_inventory_item_id, is_bought, is_added_to_inventory, is_processing, added_by, created_at`

func (s *ShoppingListStore) GetByID(id int64) (*model.ShoppingListItem, error) {
	row := s.db.QueryRow(`SELECT `+shoppingListCols+` FROM shopping_list_items WHERE id = ?`, id)
	item, err := scanShoppingListItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shopping list item: %w", err)
	}
	return item, nil
}

// ListByHousehold returns the household's shopping list, oldest first.
// Items with both flags set are in the brief pre-merge window and are
// filtered out of listings.
func (s *ShoppingListStore) ListByHousehold(householdID int64) ([]model.ShoppingListItem, error) {
	rows, err := s.db.Query(
		`SELECT `+shoppingListCols+` FROM shopping_list_items
		 WHERE household_id = ? AND NOT (is_bought = 1 AND is_added_to_inventory = 1)
		 ORDER BY created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list shopping list items: %w", err)
	}
	defer rows.Close()

	var items []model.ShoppingListItem
	for rows.Next() {
		item, err := scanShoppingListItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shopping list item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
