package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larder-app/larder/internal/model"
)

// Token lifetimes per purpose.
const (
	verifyEmailTTL   = 24 * time.Hour
	resetPasswordTTL = time.Hour
)

type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func scanAuthToken(scanner interface{ Scan(...any) error }) (*model.AuthToken, error) {
	var t model.AuthToken
	var usedAt sql.NullTime
	err := scanner.Scan(&t.ID, &t.Token, &t.UserID, &t.Email, &t.Purpose, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

const authTokenCols = `id, token, user_id, email, purpose, expires_at, used_at, created_at`

// Create issues a new token for the user and purpose, invalidating any
// previous tokens for the same user and purpose.
func (s *TokenStore) Create(userID int64, email, purpose string) (*model.AuthToken, error) {
	_, err := s.db.Exec(
		`DELETE FROM auth_tokens WHERE user_id = ? AND purpose = ?`,
		userID, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous tokens: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	ttl := verifyEmailTTL
	if purpose == model.TokenPurposeResetPassword {
		ttl = resetPasswordTTL
	}
	expiresAt := time.Now().UTC().Add(ttl)

	result, err := s.db.Exec(
		`INSERT INTO auth_tokens (token, user_id, email, purpose, expires_at) VALUES (?, ?, ?, ?, ?)`,
		token, userID, email, purpose, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert auth token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+authTokenCols+` FROM auth_tokens WHERE id = ?`, id)
	return scanAuthToken(row)
}

// Consume validates and spends a token in one step. Returns nil if the token
// does not exist, has the wrong purpose, is expired, or was already used.
func (s *TokenStore) Consume(token, purpose string) (*model.AuthToken, error) {
	row := s.db.QueryRow(
		`SELECT `+authTokenCols+` FROM auth_tokens
		 WHERE token = ? AND purpose = ? AND expires_at > datetime('now') AND used_at IS NULL`,
		token, purpose,
	)
	t, err := scanAuthToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth token: %w", err)
	}

	_, err = s.db.Exec(`UPDATE auth_tokens SET used_at = datetime('now') WHERE id = ?`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("mark auth token used: %w", err)
	}
	return t, nil
}

func (s *TokenStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM auth_tokens WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
