package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/push"
	"github.com/larder-app/larder/internal/store"
)

type PushHandler struct {
	push    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(pushStore *store.PushStore, service *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{push: pushStore, service: service, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dhKey  string `json:"p256dh_key"`
	AuthKey    string `json:"auth_key"`
	DeviceName string `json:"device_name"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" || req.P256dhKey == "" || req.AuthKey == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	sub, err := h.push.CreateSubscription(caller.UserID, caller.HouseholdID, req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName)
	if err != nil {
		h.logger.Error("create subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	sub, err := h.push.GetByID(id, caller.HouseholdID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	if err := h.push.Delete(id, caller.HouseholdID); err != nil {
		h.logger.Error("delete subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	subs, err := h.push.ListByHousehold(caller.HouseholdID)
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	prefs := make(map[string]bool)
	for _, typ := range []string{model.NotifTypeLowStock, model.NotifTypeExpiringSoon} {
		enabled, err := h.push.IsPreferenceEnabled(caller.UserID, caller.HouseholdID, typ)
		if err != nil {
			h.logger.Error("get preference", "type", typ, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get preferences")
			return
		}
		prefs[typ] = enabled
	}
	writeJSON(w, http.StatusOK, prefs)
}

type preferencesRequest struct {
	LowStock     *bool `json:"low_stock"`
	ExpiringSoon *bool `json:"expiring_soon"`
}

func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.LowStock != nil {
		if err := h.push.SetPreference(caller.UserID, caller.HouseholdID, model.NotifTypeLowStock, *req.LowStock); err != nil {
			h.logger.Error("set preference", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update preferences")
			return
		}
	}
	if req.ExpiringSoon != nil {
		if err := h.push.SetPreference(caller.UserID, caller.HouseholdID, model.NotifTypeExpiringSoon, *req.ExpiringSoon); err != nil {
			h.logger.Error("set preference", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update preferences")
			return
		}
	}

	h.GetPreferences(w, r)
}
