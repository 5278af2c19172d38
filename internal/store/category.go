package store

import (
	"database/sql"
	"fmt"

	"github.com/larder-app/larder/internal/model"
)

type CategoryStore struct {
	db *sql.DB
}

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func scanCategory(scanner interface{ Scan(...any) error }) (*model.Category, error) {
	var c model.Category
	err := scanner.Scan(&c.ID, &c.HouseholdID, &c.Name, &c.Icon, &c.Color, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const categoryCols = `id, household_id, name, icon, color, created_at`

func (s *CategoryStore) Create(householdID int64, name, icon, color string) (*model.Category, error) {
	result, err := s.db.Exec(
		`INSERT INTO categories (household_id, name, icon, color) VALUES (?, ?, ?, ?)`,
		householdID, name, icon, color,
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CategoryStore) GetByID(id int64) (*model.Category, error) {
	row := s.db.QueryRow(`SELECT `+categoryCols+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *CategoryStore) ListByHousehold(householdID int64) ([]model.Category, error) {
	rows, err := s.db.Query(
		`SELECT `+categoryCols+` FROM categories WHERE household_id = ? ORDER BY name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *CategoryStore) Update(id int64, name, icon, color string) (*model.Category, error) {
	_, err := s.db.Exec(
		`UPDATE categories SET name = ?, icon = ?, color = ? WHERE id = ?`,
		name, icon, color, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return s.GetByID(id)
}

func (s *CategoryStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// SeedDefaults creates a starter set of categories for a new household.
func (s *CategoryStore) SeedDefaults(householdID int64) error {
	defaults := []struct {
		name, icon string
	}{
		{"Produce", "🥬"},
		{"Dairy", "🥛"},
		{"Meat & Seafood", "🥩"},
		{"Bakery", "🍞"},
		{"Pantry", "🥫"},
		{"Frozen", "🧊"},
		{"Beverages", "🧃"},
		{"Household", "🧽"},
		{"Other", "📦"},
	}
	for _, d := range defaults {
		_, err := s.db.Exec(
			`INSERT INTO categories (household_id, name, icon) VALUES (?, ?, ?)`,
			householdID, d.name, d.icon,
		)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", d.name, err)
		}
	}
	return nil
}
