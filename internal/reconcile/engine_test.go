package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/database"
	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/store"
)

func openTestDB(t *testing.T) *engineFixture {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &engineFixture{
		db:        db,
		engine:    NewEngine(db, logger),
		users:     store.NewUserStore(db),
		homes:     store.NewHouseholdStore(db),
		inventory: store.NewInventoryStore(db),
		list:      store.NewShoppingListStore(db),
	}

	user, err := f.users.Create("ada@example.com", "Ada", "hash")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	home, err := f.homes.Create("Test House", user.ID)
	if err != nil {
		t.Fatalf("failed to create household: %v", err)
	}
	f.caller = auth.Context{UserID: user.ID, HouseholdID: home.ID}
	return f
}

type engineFixture struct {
	db        *sql.DB
	engine    *Engine
	users     *store.UserStore
	homes     *store.HouseholdStore
	inventory *store.InventoryStore
	list      *store.ShoppingListStore
	caller    auth.Context
}

func TestCreateValidation(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank name, got %v", err)
	}

	negative := -1.0
	_, err = f.engine.Create(ctx, f.caller, CreateParams{Name: "Milk", Quantity: &negative})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative quantity, got %v", err)
	}

	_, err = f.engine.Create(ctx, auth.Context{}, CreateParams{Name: "Milk"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}

	_, err = f.engine.Create(ctx, auth.Context{UserID: f.caller.UserID}, CreateParams{Name: "Milk"})
	if !errors.Is(err, ErrNoHousehold) {
		t.Errorf("expected ErrNoHousehold, got %v", err)
	}

	item, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Milk"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	if item.State() != model.StatePending {
		t.Errorf("expected new entry to be pending, got %s", item.State())
	}
}

func TestMarkFlagsMergesLinkedItem(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	inv, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Eggs",
		Quantity:    3,
		Unit:        "piece",
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}

	qty := 2.0
	entry, err := f.engine.Create(ctx, f.caller, CreateParams{
		Name:              "Eggs",
		Quantity:          &qty,
		LinkedInventoryID: &inv.ID,
	})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	after, err := f.engine.MarkBought(ctx, f.caller, entry.ID)
	if err != nil {
		t.Fatalf("failed to mark bought: %v", err)
	}
	if after == nil || after.State() != model.StateBought {
		t.Fatalf("expected entry to be bought after first flag, got %+v", after)
	}

	after, err = f.engine.MarkAddedToInventory(ctx, f.caller, entry.ID)
	if err != nil {
		t.Fatalf("failed to mark added: %v", err)
	}
	if after != nil {
		t.Errorf("expected entry to be removed after merge, got %+v", after)
	}

	got, err := f.inventory.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("failed to load inventory item: %v", err)
	}
	if got.Quantity != 5 {
		t.Errorf("expected quantity 5 after merge, got %v", got.Quantity)
	}

	items, err := f.inventory.ListByHousehold(f.caller.HouseholdID, nil)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected merge to increment, not duplicate: %d items", len(items))
	}
}

func TestFlagOrderIndependence(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	inv, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Butter",
		Quantity:    1,
		Unit:        "pack",
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}

	qty := 1.0
	entry, err := f.engine.Create(ctx, f.caller, CreateParams{
		Name: "Butter", Quantity: &qty, LinkedInventoryID: &inv.ID,
	})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	// Added-to-inventory first, bought second.
	if _, err := f.engine.MarkAddedToInventory(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark added: %v", err)
	}
	if _, err := f.engine.MarkBought(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark bought: %v", err)
	}

	got, err := f.inventory.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("failed to load inventory item: %v", err)
	}
	if got.Quantity != 2 {
		t.Errorf("expected quantity 2, got %v", got.Quantity)
	}

	remaining, err := f.list.GetByID(entry.ID)
	if err != nil {
		t.Fatalf("failed to query entry: %v", err)
	}
	if remaining != nil {
		t.Errorf("expected entry to be removed, got %+v", remaining)
	}
}

func TestUnlinkedEntryCreatesItemWithDefaults(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Saffron"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	if _, err := f.engine.MarkBought(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark bought: %v", err)
	}
	if _, err := f.engine.MarkAddedToInventory(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark added: %v", err)
	}

	items, err := f.inventory.ListByHousehold(f.caller.HouseholdID, nil)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one new inventory item, got %d", len(items))
	}
	if items[0].Name != "Saffron" {
		t.Errorf("expected name Saffron, got %q", items[0].Name)
	}
	if items[0].Quantity != 1 {
		t.Errorf("expected default quantity 1, got %v", items[0].Quantity)
	}
	if items[0].Unit != model.DefaultUnit {
		t.Errorf("expected default unit %q, got %q", model.DefaultUnit, items[0].Unit)
	}
}

func TestReconcileNotReadyIsNoOp(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Rice"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	// Pending entry: nothing to do.
	if err := f.engine.Reconcile(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("reconcile on pending entry: %v", err)
	}

	// Only one flag set: still nothing to do.
	markTrue := true
	if _, err := f.engine.Update(ctx, f.caller, entry.ID, UpdateParams{IsBought: &markTrue}); err != nil {
		t.Fatalf("failed to set bought: %v", err)
	}
	if err := f.engine.Reconcile(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("reconcile on bought entry: %v", err)
	}

	got, err := f.list.GetByID(entry.ID)
	if err != nil {
		t.Fatalf("failed to query entry: %v", err)
	}
	if got == nil || got.State() != model.StateBought {
		t.Errorf("expected entry untouched in bought state, got %+v", got)
	}

	items, err := f.inventory.ListByHousehold(f.caller.HouseholdID, nil)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no inventory changes, got %d items", len(items))
	}

	// Missing entry: silent no-op too.
	if err := f.engine.Reconcile(ctx, f.caller, entry.ID+1000); err != nil {
		t.Errorf("reconcile on missing entry: %v", err)
	}
}

func TestMissingLinkedItemFallsBackToCreate(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	inv, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Olive Oil",
		Quantity:    1,
		Unit:        "bottle",
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}

	qty := 2.0
	unit := "bottle"
	entry, err := f.engine.Create(ctx, f.caller, CreateParams{
		Name: "Olive Oil", Quantity: &qty, Unit: &unit, LinkedInventoryID: &inv.ID,
	})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	if _, err := f.engine.MarkBought(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark bought: %v", err)
	}

	// The linked item disappears before the second flag lands.
	if err := f.inventory.Delete(inv.ID); err != nil {
		t.Fatalf("failed to delete inventory item: %v", err)
	}

	if _, err := f.engine.MarkAddedToInventory(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark added: %v", err)
	}

	items, err := f.inventory.ListByHousehold(f.caller.HouseholdID, nil)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a fresh inventory item, got %d", len(items))
	}
	if items[0].ID == inv.ID {
		t.Errorf("expected a new item, got the deleted one back")
	}
	if items[0].Quantity != 2 || items[0].Unit != "bottle" {
		t.Errorf("expected quantity 2 bottle, got %v %s", items[0].Quantity, items[0].Unit)
	}
}

func TestUpdateSettingBothFlagsMerges(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Flour"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	markTrue := true
	after, err := f.engine.Update(ctx, f.caller, entry.ID, UpdateParams{
		IsBought:           &markTrue,
		IsAddedToInventory: &markTrue,
	})
	if err != nil {
		t.Fatalf("failed to update entry: %v", err)
	}
	if after != nil {
		t.Errorf("expected entry removed by merge, got %+v", after)
	}

	items, err := f.inventory.ListByHousehold(f.caller.HouseholdID, nil)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected one inventory item, got %d", len(items))
	}
}

func TestUpdateClearingFlagNeverMerges(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Tea"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	markTrue := true
	markFalse := false
	if _, err := f.engine.Update(ctx, f.caller, entry.ID, UpdateParams{IsBought: &markTrue}); err != nil {
		t.Fatalf("failed to set bought: %v", err)
	}
	got, err := f.engine.Update(ctx, f.caller, entry.ID, UpdateParams{IsBought: &markFalse})
	if err != nil {
		t.Fatalf("failed to clear bought: %v", err)
	}
	if got == nil || got.State() != model.StatePending {
		t.Errorf("expected entry back to pending, got %+v", got)
	}
}

func TestHouseholdIsolation(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Honey"})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	other, err := f.users.Create("bob@example.com", "Bob", "hash")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	otherHome, err := f.homes.Create("Other House", other.ID)
	if err != nil {
		t.Fatalf("failed to create household: %v", err)
	}
	outsider := auth.Context{UserID: other.ID, HouseholdID: otherHome.ID}

	if _, err := f.engine.MarkBought(ctx, outsider, entry.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.engine.Delete(ctx, outsider, entry.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestDeleteSkipsReconciliation(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	inv, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Jam",
		Quantity:    1,
		Unit:        "jar",
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}

	entry, err := f.engine.Create(ctx, f.caller, CreateParams{Name: "Jam", LinkedInventoryID: &inv.ID})
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	if _, err := f.engine.MarkBought(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to mark bought: %v", err)
	}

	if err := f.engine.Delete(ctx, f.caller, entry.ID); err != nil {
		t.Fatalf("failed to delete entry: %v", err)
	}

	got, err := f.inventory.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("failed to load inventory item: %v", err)
	}
	if got.Quantity != 1 {
		t.Errorf("expected inventory untouched by delete, got quantity %v", got.Quantity)
	}

	if err := f.engine.Delete(ctx, f.caller, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestAddLowStockItem(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()

	minStock := 5.0
	inv, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Coffee",
		Quantity:    2,
		Unit:        "bag",
		MinStock:    &minStock,
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}

	entry, err := f.engine.AddLowStockItem(ctx, f.caller, inv.ID)
	if err != nil {
		t.Fatalf("failed to add low stock item: %v", err)
	}
	if entry.Name != "Coffee" {
		t.Errorf("expected name Coffee, got %q", entry.Name)
	}
	if entry.Quantity == nil || *entry.Quantity != 3 {
		t.Errorf("expected suggested quantity 3, got %v", entry.Quantity)
	}
	if entry.LinkedInventoryID == nil || *entry.LinkedInventoryID != inv.ID {
		t.Errorf("expected link back to inventory item %d, got %v", inv.ID, entry.LinkedInventoryID)
	}

	// Above threshold: shortfall clamps to zero.
	full, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Sugar",
		Quantity:    10,
		Unit:        "kg",
		MinStock:    &minStock,
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}
	entry, err = f.engine.AddLowStockItem(ctx, f.caller, full.ID)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if entry.Quantity == nil || *entry.Quantity != 0 {
		t.Errorf("expected quantity 0, got %v", entry.Quantity)
	}

	// No threshold: default to one.
	plain, err := f.inventory.Create(store.CreateParams{
		HouseholdID: f.caller.HouseholdID,
		Name:        "Salt",
		Quantity:    0,
		Unit:        "box",
		CreatedBy:   f.caller.UserID,
	})
	if err != nil {
		t.Fatalf("failed to create inventory item: %v", err)
	}
	entry, err = f.engine.AddLowStockItem(ctx, f.caller, plain.ID)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if entry.Quantity == nil || *entry.Quantity != 1 {
		t.Errorf("expected quantity 1, got %v", entry.Quantity)
	}

	if _, err := f.engine.AddLowStockItem(ctx, f.caller, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
