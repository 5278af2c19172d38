package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/email"
	"github.com/larder-app/larder/internal/middleware"
	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/store"
)

const minPasswordLength = 8

type AuthHandler struct {
	users      *store.UserStore
	sessions   *store.SessionStore
	tokens     *store.TokenStore
	households *store.HouseholdStore
	email      *email.Client
	secure     bool
	logger     *slog.Logger
}

func NewAuthHandler(users *store.UserStore, sessions *store.SessionStore, tokens *store.TokenStore, households *store.HouseholdStore, emailClient *email.Client, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		households: households,
		email:      emailClient,
		secure:     secureCookies,
		logger:     logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	user, err := h.users.Create(req.Email, req.Name, string(hash))
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	if h.email.Configured() {
		token, err := h.tokens.Create(user.ID, user.Email, model.TokenPurposeVerifyEmail)
		if err != nil {
			h.logger.Error("create verification token", "error", err)
		} else if err := h.email.SendVerification(user.Email, token.Token); err != nil {
			h.logger.Error("send verification email", "error", err)
		}
	}

	h.startSession(w, user, http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.startSession(w, user, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	h.clearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the calling user and their household, if any.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := auth.Caller(r.Context())

	user, err := h.users.GetByID(caller.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	resp := map[string]any{"user": user}
	if caller.HasHousehold() {
		home, err := h.households.GetByID(caller.HouseholdID)
		if err == nil && home != nil {
			resp["household"] = home
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	token, err := h.tokens.Consume(tokenStr, model.TokenPurposeVerifyEmail)
	if err != nil {
		h.logger.Error("consume token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	if token == nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	if err := h.users.MarkEmailVerified(token.UserID); err != nil {
		h.logger.Error("mark verified", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset always responds OK so the endpoint does not reveal
// which emails have accounts.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("lookup user", "error", err)
	}
	if user != nil && h.email.Configured() {
		token, err := h.tokens.Create(user.ID, user.Email, model.TokenPurposeResetPassword)
		if err != nil {
			h.logger.Error("create reset token", "error", err)
		} else if err := h.email.SendPasswordReset(user.Email, token.Token); err != nil {
			h.logger.Error("send reset email", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	token, err := h.tokens.Consume(req.Token, model.TokenPurposeResetPassword)
	if err != nil {
		h.logger.Error("consume token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if token == nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if err := h.users.SetPasswordHash(token.UserID, string(hash)); err != nil {
		h.logger.Error("set password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	// Invalidate every open session after a password change.
	if err := h.sessions.DeleteForUser(token.UserID); err != nil {
		h.logger.Error("delete sessions", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, user *model.User, status int) {
	sess, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, map[string]any{"user": user})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
