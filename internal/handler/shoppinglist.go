package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/reconcile"
	"github.com/larder-app/larder/internal/store"
	ws "github.com/larder-app/larder/internal/websocket"
)

type ShoppingListHandler struct {
	list   *store.ShoppingListStore
	engine *reconcile.Engine
	hub    *ws.Hub
	logger *slog.Logger
}

func NewShoppingListHandler(list *store.ShoppingListStore, engine *reconcile.Engine, hub *ws.Hub, logger *slog.Logger) *ShoppingListHandler {
	return &ShoppingListHandler{list: list, engine: engine, hub: hub, logger: logger}
}

type shoppingListItemRequest struct {
	Name               *string  `json:"name"`
	Quantity           *float64 `json:"quantity"`
	Unit               *string  `json:"unit"`
	CategoryID         *int64   `json:"category_id"`
	ClearCategory      bool     `json:"clear_category"`
	LinkedInventoryID  *int64   `json:"linked_inventory_item_id"`
	IsBought           *bool    `json:"is_bought"`
	IsAddedToInventory *bool    `json:"is_added_to_inventory"`
}

// List returns the household's open shopping list entries. Entries whose
// merge is pending or in flight are excluded.
func (h *ShoppingListHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	items, err := h.list.ListByHousehold(caller.HouseholdID)
	if err != nil {
		h.logger.Error("list shopping list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.ShoppingListItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ShoppingListHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.list.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil || item.HouseholdID != caller.HouseholdID {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ShoppingListHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req shoppingListItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	item, err := h.engine.Create(r.Context(), caller, reconcile.CreateParams{
		Name:              name,
		Quantity:          req.Quantity,
		Unit:              req.Unit,
		CategoryID:        req.CategoryID,
		LinkedInventoryID: req.LinkedInventoryID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("shopping_list_item", "created", item.ID, nil))
	writeJSON(w, http.StatusCreated, item)
}

// Update applies a partial patch. Patching both flags on merges the entry
// into inventory, in which case the response carries a null item.
func (h *ShoppingListHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req shoppingListItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.engine.Update(r.Context(), caller, id, reconcile.UpdateParams{
		Name:               req.Name,
		Quantity:           req.Quantity,
		Unit:               req.Unit,
		CategoryID:         req.CategoryID,
		ClearCategory:      req.ClearCategory,
		IsBought:           req.IsBought,
		IsAddedToInventory: req.IsAddedToInventory,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.broadcastOutcome(caller.HouseholdID, id, item)
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

// MarkBought flags the entry as purchased.
func (h *ShoppingListHandler) MarkBought(w http.ResponseWriter, r *http.Request) {
	h.markFlag(w, r, (*reconcile.Engine).MarkBought)
}

// MarkAddedToInventory flags the entry for inventory merge.
func (h *ShoppingListHandler) MarkAddedToInventory(w http.ResponseWriter, r *http.Request) {
	h.markFlag(w, r, (*reconcile.Engine).MarkAddedToInventory)
}

func (h *ShoppingListHandler) markFlag(w http.ResponseWriter, r *http.Request, op func(*reconcile.Engine, context.Context, auth.Context, int64) (*model.ShoppingListItem, error)) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := op(h.engine, r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.broadcastOutcome(caller.HouseholdID, id, item)
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *ShoppingListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.engine.Delete(r.Context(), caller, id); err != nil {
		writeEngineError(w, err)
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("shopping_list_item", "deleted", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// broadcastOutcome tells clients whether the entry changed or was merged away.
func (h *ShoppingListHandler) broadcastOutcome(householdID, id int64, item *model.ShoppingListItem) {
	if item == nil {
		h.hub.BroadcastTo(householdID, ws.NewMessage("shopping_list_item", "merged", id, nil))
		h.hub.BroadcastTo(householdID, ws.NewMessage("inventory_item", "changed", 0, nil))
		return
	}
	h.hub.BroadcastTo(householdID, ws.NewMessage("shopping_list_item", "updated", id, nil))
}
