package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larder-app/larder/internal/model"
)

type InventoryStore struct {
	db *sql.DB
}

func NewInventoryStore(db *sql.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func scanInventoryItem(scanner interface{ Scan(...any) error }) (*model.InventoryItem, error) {
	var item model.InventoryItem
	var categoryID sql.NullInt64
	var minStock sql.NullFloat64
	var expirationDate sql.NullTime
	var notes sql.NullString

	err := scanner.Scan(
		&item.ID, &item.HouseholdID, &categoryID, &item.Name, &item.Quantity,
		&item.Unit, &minStock, &expirationDate, &notes, &item.LastUpdatedBy,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		item.CategoryID = &categoryID.Int64
	}
	if minStock.Valid {
		item.MinStock = &minStock.Float64
	}
	if expirationDate.Valid {
		item.ExpirationDate = &expirationDate.Time
	}
	if notes.Valid {
		item.Notes = &notes.String
	}
	return &item, nil
}

const inventoryCols = `id, household_id, category_id, name, quantity, unit, min_stock, expiration_date, notes, last_updated_by, created_at, updated_at`

// CreateParams holds the fields for a new inventory item.
type CreateParams struct {
	HouseholdID    int64
	CategoryID     *int64
	Name           string
	Quantity       float64
	Unit           string
	MinStock       *float64
	ExpirationDate *time.Time
	Notes          *string
	CreatedBy      int64
}

func (s *InventoryStore) Create(p CreateParams) (*model.InventoryItem, error) {
	result, err := s.db.Exec(
		`INSERT INTO inventory_items (household_id, category_id, name, quantity, unit, min_stock, expiration_date, notes, last_updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.HouseholdID, nullInt64(p.CategoryID), p.Name, p.Quantity, p.Unit,
		nullFloat64(p.MinStock), nullTime(p.ExpirationDate), nullString(p.Notes), p.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert inventory item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *InventoryStore) GetByID(id int64) (*model.InventoryItem, error) {
	row := s.db.QueryRow(`SELECT `+inventoryCols+` FROM inventory_items WHERE id = ?`, id)
	item, err := scanInventoryItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

// ListByHousehold returns items newest first, optionally filtered by category.
func (s *InventoryStore) ListByHousehold(householdID int64, categoryID *int64) ([]model.InventoryItem, error) {
	var rows *sql.Rows
	var err error
	if categoryID != nil {
		rows, err = s.db.Query(
			`SELECT `+inventoryCols+` FROM inventory_items WHERE household_id = ? AND category_id = ? ORDER BY created_at DESC, id DESC`,
			householdID, *categoryID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+inventoryCols+` FROM inventory_items WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
			householdID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list inventory items: %w", err)
	}
	defer rows.Close()

	return collectInventoryItems(rows)
}

// ListLowStock returns items whose quantity has fallen below min_stock.
func (s *InventoryStore) ListLowStock(householdID int64) ([]model.InventoryItem, error) {
	rows, err := s.db.Query(
		`SELECT `+inventoryCols+` FROM inventory_items
		 WHERE household_id = ? AND min_stock IS NOT NULL AND quantity < min_stock
		 ORDER BY name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list low stock items: %w", err)
	}
	defer rows.Close()

	return collectInventoryItems(rows)
}

// ListExpiringSoon returns items expiring within the window, soonest first.
func (s *InventoryStore) ListExpiringSoon(householdID int64, window time.Duration) ([]model.InventoryItem, error) {
	now := time.Now().UTC()
	rows, err := s.db.Query(
		`SELECT `+inventoryCols+` FROM inventory_items
		 WHERE household_id = ? AND expiration_date IS NOT NULL AND expiration_date >= ? AND expiration_date <= ?
		 ORDER BY expiration_date ASC`,
		householdID, now, now.Add(window),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring items: %w", err)
	}
	defer rows.Close()

	return collectInventoryItems(rows)
}

// UpdateParams holds a partial patch; nil fields are left unchanged.
type UpdateParams struct {
	CategoryID     *int64
	ClearCategory  bool
	Name           *string
	Quantity       *float64
	Unit           *string
	MinStock       *float64
	ClearMinStock  bool
	ExpirationDate *time.Time
	ClearExpiry    bool
	Notes          *string
}

func (s *InventoryStore) Update(id int64, p UpdateParams, updatedBy int64) (*model.InventoryItem, error) {
	item, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	if p.ClearCategory {
		item.CategoryID = nil
	} else if p.CategoryID != nil {
		item.CategoryID = p.CategoryID
	}
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.ClearMinStock {
		item.MinStock = nil
	} else if p.MinStock != nil {
		item.MinStock = p.MinStock
	}
	if p.ClearExpiry {
		item.ExpirationDate = nil
	} else if p.ExpirationDate != nil {
		item.ExpirationDate = p.ExpirationDate
	}
	if p.Notes != nil {
		item.Notes = p.Notes
	}

	_, err = s.db.Exec(
		`UPDATE inventory_items
		 SET category_id = ?, name = ?, quantity = ?, unit = ?, min_stock = ?, expiration_date = ?, notes = ?, last_updated_by = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		nullInt64(item.CategoryID), item.Name, item.Quantity, item.Unit,
		nullFloat64(item.MinStock), nullTime(item.ExpirationDate), nullString(item.Notes), updatedBy, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update inventory item: %w", err)
	}
	return s.GetByID(id)
}

func (s *InventoryStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete inventory item: %w", err)
	}
	return nil
}

func collectInventoryItems(rows *sql.Rows) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
