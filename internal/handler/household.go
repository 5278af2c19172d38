package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/email"
	"github.com/larder-app/larder/internal/store"
)

type HouseholdHandler struct {
	households *store.HouseholdStore
	categories *store.CategoryStore
	users      *store.UserStore
	email      *email.Client
	logger     *slog.Logger
}

func NewHouseholdHandler(households *store.HouseholdStore, categories *store.CategoryStore, users *store.UserStore, emailClient *email.Client, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{
		households: households,
		categories: categories,
		users:      users,
		email:      emailClient,
		logger:     logger,
	}
}

type householdRequest struct {
	Name string `json:"name"`
}

// Create makes a new household with the caller as creator and first member,
// seeded with the default categories. A user belongs to at most one household.
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())
	if caller.HasHousehold() {
		writeError(w, http.StatusConflict, "already in a household")
		return
	}

	var req householdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	home, err := h.households.Create(req.Name, caller.UserID)
	if err != nil {
		h.logger.Error("create household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}

	if err := h.categories.SeedDefaults(home.ID); err != nil {
		h.logger.Error("seed categories", "household_id", home.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, home)
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	home, err := h.households.GetByID(caller.HouseholdID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	if home == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	writeJSON(w, http.StatusOK, home)
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req householdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	home, err := h.households.Update(caller.HouseholdID, req.Name)
	if err != nil {
		h.logger.Error("update household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update household")
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// Delete removes the household and all of its data. Creator only.
func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	home, err := h.households.GetByID(caller.HouseholdID)
	if err != nil || home == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if home.CreatedBy != caller.UserID {
		writeError(w, http.StatusForbidden, "only the creator can delete the household")
		return
	}

	if err := h.households.Delete(home.ID); err != nil {
		h.logger.Error("delete household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete household")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *HouseholdHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	members, err := h.households.ListMemberDetails(caller.HouseholdID)
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// RemoveMember removes a member. The creator can remove anyone but
// themselves; other members can only leave.
func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	home, err := h.households.GetByID(caller.HouseholdID)
	if err != nil || home == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	if userID == home.CreatedBy {
		writeError(w, http.StatusBadRequest, "the creator cannot leave the household")
		return
	}
	if userID != caller.UserID && caller.UserID != home.CreatedBy {
		writeError(w, http.StatusForbidden, "only the creator can remove other members")
		return
	}

	if err := h.households.RemoveMember(caller.HouseholdID, userID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// GetInvite returns the household's current valid invite code, creating one
// if none exists.
func (h *HouseholdHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	invite, err := h.households.GetOrCreateInvite(caller.HouseholdID, caller.UserID)
	if err != nil {
		h.logger.Error("get invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get invite")
		return
	}
	writeJSON(w, http.StatusOK, invite)
}

type sendInviteRequest struct {
	Email string `json:"email"`
}

// SendInvite emails the household invite code to an address.
func (h *HouseholdHandler) SendInvite(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	var req sendInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if !h.email.Configured() {
		writeError(w, http.StatusServiceUnavailable, "email is not configured")
		return
	}

	home, err := h.households.GetByID(caller.HouseholdID)
	if err != nil || home == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	invite, err := h.households.GetOrCreateInvite(caller.HouseholdID, caller.UserID)
	if err != nil {
		h.logger.Error("get invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get invite")
		return
	}

	if err := h.email.SendInvite(req.Email, home.Name, invite.InviteCode); err != nil {
		h.logger.Error("send invite email", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type joinRequest struct {
	Code string `json:"code"`
}

// Join adds the caller to the household behind an invite code. Users already
// in a household must leave it first.
func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())
	if caller.HasHousehold() {
		writeError(w, http.StatusConflict, "already in a household")
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	invite, err := h.households.GetInviteByCode(code)
	if err != nil {
		h.logger.Error("lookup invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join household")
		return
	}
	if invite == nil {
		writeError(w, http.StatusBadRequest, "invalid or expired invite code")
		return
	}

	if _, err := h.households.AddMember(invite.HouseholdID, caller.UserID); err != nil {
		h.logger.Error("add member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join household")
		return
	}

	home, err := h.households.GetByID(invite.HouseholdID)
	if err != nil || home == nil {
		writeError(w, http.StatusInternalServerError, "failed to load household")
		return
	}
	writeJSON(w, http.StatusOK, home)
}
