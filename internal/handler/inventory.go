package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/push"
	"github.com/larder-app/larder/internal/reconcile"
	"github.com/larder-app/larder/internal/store"
	ws "github.com/larder-app/larder/internal/websocket"
)

type InventoryHandler struct {
	inventory *store.InventoryStore
	engine    *reconcile.Engine
	hub       *ws.Hub
	logger    *slog.Logger
}

func NewInventoryHandler(inventory *store.InventoryStore, engine *reconcile.Engine, hub *ws.Hub, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, engine: engine, hub: hub, logger: logger}
}

type inventoryItemRequest struct {
	Name           string   `json:"name"`
	Quantity       *float64 `json:"quantity"`
	Unit           *string  `json:"unit"`
	CategoryID     *int64   `json:"category_id"`
	ClearCategory  bool     `json:"clear_category"`
	MinStock       *float64 `json:"min_stock"`
	ClearMinStock  bool     `json:"clear_min_stock"`
	ExpirationDate *string  `json:"expiration_date"`
	ClearExpiry    bool     `json:"clear_expiration_date"`
	Notes          *string  `json:"notes"`
}

func parseExpiration(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, *s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	quantity := 0.0
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			writeError(w, http.StatusBadRequest, "quantity must not be negative")
			return
		}
		quantity = *req.Quantity
	}
	unit := model.DefaultUnit
	if req.Unit != nil && *req.Unit != "" {
		unit = *req.Unit
	}
	expiry, err := parseExpiration(req.ExpirationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expiration date")
		return
	}

	item, err := h.inventory.Create(store.CreateParams{
		HouseholdID:    caller.HouseholdID,
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		Quantity:       quantity,
		Unit:           unit,
		MinStock:       req.MinStock,
		ExpirationDate: expiry,
		Notes:          req.Notes,
		CreatedBy:      caller.UserID,
	})
	if err != nil {
		h.logger.Error("create inventory item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("inventory_item", "created", item.ID, nil))
	writeJSON(w, http.StatusCreated, item)
}

func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var categoryID *int64
	if s := r.URL.Query().Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		categoryID = &id
	}

	items, err := h.inventory.ListByHousehold(caller.HouseholdID, categoryID)
	if err != nil {
		h.logger.Error("list inventory", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.inventory.GetByID(id)
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

func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.inventory.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if existing == nil || existing.HouseholdID != caller.HouseholdID {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	var req inventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	expiry, err := parseExpiration(req.ExpirationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expiration date")
		return
	}

	p := store.UpdateParams{
		CategoryID:     req.CategoryID,
		ClearCategory:  req.ClearCategory,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		MinStock:       req.MinStock,
		ClearMinStock:  req.ClearMinStock,
		ExpirationDate: expiry,
		ClearExpiry:    req.ClearExpiry,
		Notes:          req.Notes,
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		p.Name = &name
	}

	item, err := h.inventory.Update(id, p, caller.UserID)
	if err != nil {
		h.logger.Error("update inventory item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("inventory_item", "updated", id, nil))
	writeJSON(w, http.StatusOK, item)
}

func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.inventory.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if existing == nil || existing.HouseholdID != caller.HouseholdID {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if err := h.inventory.Delete(id); err != nil {
		h.logger.Error("delete inventory item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("inventory_item", "deleted", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListLowStock returns items below their minimum stock threshold.
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	items, err := h.inventory.ListLowStock(caller.HouseholdID)
	if err != nil {
		h.logger.Error("list low stock", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ListExpiringSoon returns items expiring within the next week, soonest first.
func (h *InventoryHandler) ListExpiringSoon(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	items, err := h.inventory.ListExpiringSoon(caller.HouseholdID, push.ExpiryWindow)
	if err != nil {
		h.logger.Error("list expiring", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// AddToShoppingList creates a linked restock entry for an inventory item.
func (h *InventoryHandler) AddToShoppingList(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entry, err := h.engine.AddLowStockItem(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.hub.BroadcastTo(caller.HouseholdID, ws.NewMessage("shopping_list_item", "created", entry.ID, nil))
	writeJSON(w, http.StatusCreated, entry)
}
