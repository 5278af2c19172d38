package store

import (
	"testing"
	"time"
)

func ptrF(v float64) *float64 { return &v }
func ptrS(v string) *string   { return &v }
func ptrI(v int64) *int64     { return &v }

func TestInventoryCreateAndGet(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)

	item, err := is.Create(CreateParams{
		HouseholdID: home.ID,
		Name:        "Milk",
		Quantity:    2,
		Unit:        "liter",
		MinStock:    ptrF(1),
		Notes:       ptrS("whole milk"),
		CreatedBy:   u.ID,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Name != "Milk" || item.Quantity != 2 || item.Unit != "liter" {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.MinStock == nil || *item.MinStock != 1 {
		t.Errorf("min stock = %v, want 1", item.MinStock)
	}

	got, err := is.GetByID(item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got == nil || got.Notes == nil || *got.Notes != "whole milk" {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestInventoryUpdatePatch(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	cs := NewCategoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)
	cat, _ := cs.Create(home.ID, "Dairy", "", "")

	item, _ := is.Create(CreateParams{
		HouseholdID: home.ID,
		Name:        "Milk",
		Quantity:    2,
		Unit:        "liter",
		MinStock:    ptrF(1),
		CreatedBy:   u.ID,
	})

	// Patch one field, everything else stays.
	updated, err := is.Update(item.ID, UpdateParams{Quantity: ptrF(5)}, u.ID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 5 || updated.Name != "Milk" || updated.MinStock == nil {
		t.Errorf("unexpected item after patch: %+v", updated)
	}

	updated, err = is.Update(item.ID, UpdateParams{CategoryID: &cat.ID}, u.ID)
	if err != nil {
		t.Fatalf("set category: %v", err)
	}
	if updated.CategoryID == nil || *updated.CategoryID != cat.ID {
		t.Errorf("category = %v, want %d", updated.CategoryID, cat.ID)
	}

	updated, err = is.Update(item.ID, UpdateParams{ClearCategory: true, ClearMinStock: true}, u.ID)
	if err != nil {
		t.Fatalf("clear fields: %v", err)
	}
	if updated.CategoryID != nil || updated.MinStock != nil {
		t.Errorf("expected cleared fields, got %+v", updated)
	}

	missing, err := is.Update(99999, UpdateParams{Quantity: ptrF(1)}, u.ID)
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing item")
	}
}

func TestInventoryListByCategory(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	cs := NewCategoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)
	dairy, _ := cs.Create(home.ID, "Dairy", "", "")

	is.Create(CreateParams{HouseholdID: home.ID, CategoryID: &dairy.ID, Name: "Milk", Quantity: 1, Unit: "liter", CreatedBy: u.ID})
	is.Create(CreateParams{HouseholdID: home.ID, CategoryID: &dairy.ID, Name: "Butter", Quantity: 1, Unit: "piece", CreatedBy: u.ID})
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Rice", Quantity: 1, Unit: "kg", CreatedBy: u.ID})

	all, err := is.ListByHousehold(home.ID, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("items = %d, want 3", len(all))
	}

	filtered, err := is.ListByHousehold(home.ID, &dairy.ID)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("dairy items = %d, want 2", len(filtered))
	}
}

func TestInventoryListLowStock(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)

	is.Create(CreateParams{HouseholdID: home.ID, Name: "Milk", Quantity: 1, Unit: "liter", MinStock: ptrF(3), CreatedBy: u.ID})
	// At the threshold, not below it.
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Eggs", Quantity: 6, Unit: "piece", MinStock: ptrF(6), CreatedBy: u.ID})
	// No threshold configured.
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Rice", Quantity: 0, Unit: "kg", CreatedBy: u.ID})

	low, err := is.ListLowStock(home.ID)
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(low) != 1 || low[0].Name != "Milk" {
		t.Fatalf("unexpected low stock items: %+v", low)
	}
}

func TestInventoryListExpiringSoon(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)

	in2 := time.Now().UTC().Add(2 * 24 * time.Hour)
	in5 := time.Now().UTC().Add(5 * 24 * time.Hour)
	in30 := time.Now().UTC().Add(30 * 24 * time.Hour)

	is.Create(CreateParams{HouseholdID: home.ID, Name: "Yogurt", Quantity: 1, Unit: "piece", ExpirationDate: &in5, CreatedBy: u.ID})
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Milk", Quantity: 1, Unit: "liter", ExpirationDate: &in2, CreatedBy: u.ID})
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Flour", Quantity: 1, Unit: "kg", ExpirationDate: &in30, CreatedBy: u.ID})
	is.Create(CreateParams{HouseholdID: home.ID, Name: "Salt", Quantity: 1, Unit: "kg", CreatedBy: u.ID})

	soon, err := is.ListExpiringSoon(home.ID, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(soon) != 2 {
		t.Fatalf("expiring items = %d, want 2", len(soon))
	}
	// Soonest first.
	if soon[0].Name != "Milk" || soon[1].Name != "Yogurt" {
		t.Errorf("unexpected order: %q, %q", soon[0].Name, soon[1].Name)
	}
}

func TestInventoryDelete(t *testing.T) {
	db := openStoreDB(t)
	is := NewInventoryStore(db)
	u := seedUser(t, db, "alice@example.com")
	home := seedHousehold(t, db, u.ID)

	item, _ := is.Create(CreateParams{HouseholdID: home.ID, Name: "Milk", Quantity: 1, Unit: "liter", CreatedBy: u.ID})
	if err := is.Delete(item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := is.GetByID(item.ID); got != nil {
		t.Error("expected item to be gone")
	}
}
