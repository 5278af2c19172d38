// Package reconcile implements the shopping-list-to-inventory reconciliation
// engine: the lifecycle of a shopping list entry and the exactly-once merge
// that folds a bought entry into the household inventory.
//
// Every mutating operation runs as a single SQLite transaction. Marking the
// second of the two flags (bought / added-to-inventory) and performing the
// merge share one transaction, so an entry can never be observed "ready but
// unprocessed" after a crash, and a failed merge rolls back its processing
// claim along with everything else.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/larder-app/larder/internal/model"

	"github.com/larder-app/larder/internal/auth"
)

type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// CreateParams holds the fields for a new shopping list entry.
type CreateParams struct {
	Name              string
	Quantity          *float64
	Unit              *string
	CategoryID        *int64
	LinkedInventoryID *int64
}

// UpdateParams is a partial patch; nil fields are left unchanged.
type UpdateParams struct {
	Name               *string
	Quantity           *float64
	Unit               *string
	CategoryID         *int64
	ClearCategory      bool
	IsBought           *bool
	IsAddedToInventory *bool
}

// Create inserts a new entry with all flags false. No side effects beyond the
// insert.
func (e *Engine) Create(ctx context.Context, caller auth.Context, p CreateParams) (*model.ShoppingListItem, error) {
	if err := requireHousehold(caller); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	var item *model.ShoppingListItem
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO shopping_list_items (household_id, name, quantity, unit, category_id, linked_inventory_item_id, added_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			caller.HouseholdID, p.Name, nullFloat64(p.Quantity), nullString(p.Unit),
			nullInt64(p.CategoryID), nullInt64(p.LinkedInventoryID), caller.UserID,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		item, err = getEntry(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Update applies a partial patch. If the patch turned on a flag and the entry
// is now in the ready state, the merge runs inside the same transaction.
// The returned item is nil when the entry was merged into inventory and
// removed.
func (e *Engine) Update(ctx context.Context, caller auth.Context, id int64, p UpdateParams) (*model.ShoppingListItem, error) {
	if err := requireHousehold(caller); err != nil {
		return nil, err
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: name is required", ErrValidation)
		}
		p.Name = &trimmed
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	var item *model.ShoppingListItem
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: shopping list item %d", ErrNotFound, id)
		}
		if entry.HouseholdID != caller.HouseholdID {
			return ErrNotAuthorized
		}

		if p.Name != nil {
			entry.Name = *p.Name
		}
		if p.Quantity != nil {
			entry.Quantity = p.Quantity
		}
		if p.Unit != nil {
			entry.Unit = p.Unit
		}
		if p.ClearCategory {
			entry.CategoryID = nil
		} else if p.CategoryID != nil {
			entry.CategoryID = p.CategoryID
		}
		setTrue := false
		if p.IsBought != nil {
			entry.IsBought = *p.IsBought
			setTrue = setTrue || *p.IsBought
		}
		if p.IsAddedToInventory != nil {
			entry.IsAddedToInventory = *p.IsAddedToInventory
			setTrue = setTrue || *p.IsAddedToInventory
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE shopping_list_items
			 SET name = ?, quantity = ?, unit = ?, category_id = ?, is_bought = ?, is_added_to_inventory = ?
			 WHERE id = ?`,
			entry.Name, nullFloat64(entry.Quantity), nullString(entry.Unit), nullInt64(entry.CategoryID),
			boolInt(entry.IsBought), boolInt(entry.IsAddedToInventory), id,
		)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}

		// Turning a flag off never triggers reconciliation.
		if setTrue && entry.State() == model.StateReady {
			if err := e.reconcileTx(ctx, tx, caller, id); err != nil {
				return err
			}
		}

		item, err = getEntry(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkBought sets the bought flag and reconciles if the entry was already
// marked added-to-inventory.
func (e *Engine) MarkBought(ctx context.Context, caller auth.Context, id int64) (*model.ShoppingListItem, error) {
	return e.markFlag(ctx, caller, id, "is_bought")
}

// MarkAddedToInventory sets the added-to-inventory flag and reconciles if the
// entry was already bought. Symmetric to MarkBought: marking either flag while
// the other is set always runs the merge.
func (e *Engine) MarkAddedToInventory(ctx context.Context, caller auth.Context, id int64) (*model.ShoppingListItem, error) {
	return e.markFlag(ctx, caller, id, "is_added_to_inventory")
}

func (e *Engine) markFlag(ctx context.Context, caller auth.Context, id int64, column string) (*model.ShoppingListItem, error) {
	if err := requireHousehold(caller); err != nil {
		return nil, err
	}

	var item *model.ShoppingListItem
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: shopping list item %d", ErrNotFound, id)
		}
		if entry.HouseholdID != caller.HouseholdID {
			return ErrNotAuthorized
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE shopping_list_items SET `+column+` = 1 WHERE id = ?`, id,
		)
		if err != nil {
			return fmt.Errorf("set %s: %w", column, err)
		}

		if err := e.reconcileTx(ctx, tx, caller, id); err != nil {
			return err
		}
		item, err = getEntry(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes an entry unconditionally, with no reconciliation.
func (e *Engine) Delete(ctx context.Context, caller auth.Context, id int64) error {
	if err := requireHousehold(caller); err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: shopping list item %d", ErrNotFound, id)
		}
		if entry.HouseholdID != caller.HouseholdID {
			return ErrNotAuthorized
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		return nil
	})
}

// Reconcile folds a ready entry into inventory and removes it. Idempotent:
// a missing entry, an entry that is not ready, or an entry already being
// processed are all silent no-ops, so the operation is safe to invoke
// speculatively or concurrently.
func (e *Engine) Reconcile(ctx context.Context, caller auth.Context, id int64) error {
	if err := requireHousehold(caller); err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		return e.reconcileTx(ctx, tx, caller, id)
	})
}

// reconcileTx runs the merge state machine inside an open transaction.
func (e *Engine) reconcileTx(ctx context.Context, tx *sql.Tx, caller auth.Context, id int64) error {
	entry, err := getEntry(ctx, tx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		// Already processed or deleted.
		return nil
	}
	if entry.HouseholdID != caller.HouseholdID {
		return ErrNotAuthorized
	}
	if entry.State() != model.StateReady {
		return nil
	}

	// Claim the entry. The conditional update is the processing guard: a
	// concurrent attempt that lost the race affects zero rows and backs off.
	result, err := tx.ExecContext(ctx,
		`UPDATE shopping_list_items SET is_processing = 1
		 WHERE id = ? AND is_bought = 1 AND is_added_to_inventory = 1 AND is_processing = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("claim entry: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if claimed == 0 {
		return nil
	}

	if err := e.mergeTx(ctx, tx, caller, entry); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete merged entry: %w", err)
	}

	e.logger.Info("entry merged into inventory",
		"entry_id", entry.ID,
		"household_id", entry.HouseholdID,
		"linked", entry.LinkedInventoryID != nil,
	)
	return nil
}

// mergeTx increments the linked inventory item, or creates a new one when the
// entry has no link or the linked item is gone.
func (e *Engine) mergeTx(ctx context.Context, tx *sql.Tx, caller auth.Context, entry *model.ShoppingListItem) error {
	if entry.LinkedInventoryID != nil {
		result, err := tx.ExecContext(ctx,
			`UPDATE inventory_items
			 SET quantity = quantity + ?, last_updated_by = ?, updated_at = datetime('now')
			 WHERE id = ? AND household_id = ?`,
			entry.MergeQuantity(), caller.UserID, *entry.LinkedInventoryID, entry.HouseholdID,
		)
		if err != nil {
			return fmt.Errorf("increment linked item: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
		// Linked item no longer exists; fall through and create a new one
		// rather than dropping the merge.
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO inventory_items (household_id, category_id, name, quantity, unit, last_updated_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.HouseholdID, nullInt64(entry.CategoryID), entry.Name,
		entry.MergeQuantity(), entry.MergeUnit(), caller.UserID,
	)
	if err != nil {
		return fmt.Errorf("create inventory item: %w", err)
	}
	return nil
}

// AddLowStockItem creates a shopping list entry that restocks an inventory
// item. The suggested quantity is the shortfall below the minimum stock
// threshold, or 1 when no threshold is set. The entry carries a link back to
// the inventory item so reconciliation increments it instead of creating a
// duplicate.
func (e *Engine) AddLowStockItem(ctx context.Context, caller auth.Context, inventoryItemID int64) (*model.ShoppingListItem, error) {
	if err := requireHousehold(caller); err != nil {
		return nil, err
	}

	row := e.db.QueryRowContext(ctx,
		`SELECT id, household_id, category_id, name, quantity, unit, min_stock FROM inventory_items WHERE id = ?`,
		inventoryItemID,
	)
	var (
		itemID, householdID int64
		categoryID          sql.NullInt64
		name, unit          string
		quantity            float64
		minStock            sql.NullFloat64
	)
	err := row.Scan(&itemID, &householdID, &categoryID, &name, &quantity, &unit, &minStock)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: inventory item %d", ErrNotFound, inventoryItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	if householdID != caller.HouseholdID {
		return nil, ErrNotAuthorized
	}

	suggested := 1.0
	if minStock.Valid {
		suggested = minStock.Float64 - quantity
		if suggested < 0 {
			suggested = 0
		}
	}

	p := CreateParams{
		Name:              name,
		Quantity:          &suggested,
		Unit:              &unit,
		LinkedInventoryID: &itemID,
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	return e.Create(ctx, caller, p)
}

func (e *Engine) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireHousehold(caller auth.Context) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if !caller.HasHousehold() {
		return ErrNoHousehold
	}
	return nil
}

const entryCols = `id, household_id, name, quantity, unit, category_id, linked_inventory_item_id, is_bought, is_added_to_inventory, is_processing, added_by, created_at`

func getEntry(ctx context.Context, tx *sql.Tx, id int64) (*model.ShoppingListItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+entryCols+` FROM shopping_list_items WHERE id = ?`, id)

	var item model.ShoppingListItem
	var quantity sql.NullFloat64
	var unit sql.NullString
	var categoryID, linkedID sql.NullInt64
	var bought, added, processing int

	err := row.Scan(
		&item.ID, &item.HouseholdID, &item.Name, &quantity, &unit,
		&categoryID, &linkedID, &bought, &added, &processing,
		&item.AddedBy, &item.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
