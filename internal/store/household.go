package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/larder-app/larder/internal/model"
)

// Invite codes avoid easily confused characters (0/O, 1/I/L).
const inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	inviteCodeLength = 8
	inviteTTL        = 30 * 24 * time.Hour
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseholdMember(scanner interface{ Scan(...any) error }) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanInvite(scanner interface{ Scan(...any) error }) (*model.HouseholdInvite, error) {
	var inv model.HouseholdInvite
	var expiresAt sql.NullTime
	err := scanner.Scan(&inv.ID, &inv.HouseholdID, &inv.InviteCode, &inv.CreatedBy, &expiresAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		inv.ExpiresAt = &expiresAt.Time
	}
	return &inv, nil
}

const householdCols = `id, name, created_by, created_at, updated_at`
const householdMemberCols = `id, household_id, user_id, created_at`
const inviteCols = `id, household_id, invite_code, created_by, expires_at, created_at`

// Create creates a household and adds the creator as its first member.
func (s *HouseholdStore) Create(name string, createdBy int64) (*model.Household, error) {
	result, err := s.db.Exec(
		`INSERT INTO households (name, created_by) VALUES (?, ?)`,
		name, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if _, err := s.AddMember(id, createdBy); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Update(id int64, name string) (*model.Household, error) {
	_, err := s.db.Exec(
		`UPDATE households SET name = ?, updated_at = datetime('now') WHERE id = ?`,
		name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

// --- Membership ---

func (s *HouseholdStore) AddMember(householdID, userID int64) (*model.HouseholdMember, error) {
	result, err := s.db.Exec(
		`INSERT INTO household_members (household_id, user_id) VALUES (?, ?)`,
		householdID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+householdMemberCols+` FROM household_members WHERE id = ?`, id)
	return scanHouseholdMember(row)
}

func (s *HouseholdStore) RemoveMember(householdID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *HouseholdStore) GetMember(householdID, userID int64) (*model.HouseholdMember, error) {
	row := s.db.QueryRow(
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanHouseholdMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// GetForUser resolves the household a user belongs to, or nil if none.
// Users belong to at most one household.
func (s *HouseholdStore) GetForUser(userID int64) (*model.Household, error) {
	row := s.db.QueryRow(
		`SELECT h.id, h.name, h.created_by, h.created_at, h.updated_at
		 FROM households h
		 JOIN household_members m ON m.household_id = h.id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at ASC LIMIT 1`,
		userID,
	)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household for user: %w", err)
	}
	return h, nil
}

// ListMemberDetails returns all members of a household joined with user info.
func (s *HouseholdStore) ListMemberDetails(householdID int64) ([]model.MemberDetail, error) {
	h, err := s.GetByID(householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT m.id, m.user_id, u.email, u.name
		 FROM household_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.household_id = ?
		 ORDER BY m.created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.MemberDetail
	for rows.Next() {
		var d model.MemberDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.Email, &d.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		d.IsCreator = d.UserID == h.CreatedBy
		members = append(members, d)
	}
	return members, rows.Err()
}

// --- Invites ---

func generateInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		code[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GetOrCreateInvite returns the household's current unexpired invite, creating
// a fresh 30-day code if none exists.
func (s *HouseholdStore) GetOrCreateInvite(householdID, createdBy int64) (*model.HouseholdInvite, error) {
	inv, err := s.GetValidInvite(householdID)
	if err != nil {
		return nil, err
	}
	if inv != nil {
		return inv, nil
	}

	for {
		code, err := generateInviteCode()
		if err != nil {
			return nil, err
		}
		existing, err := s.GetInviteByCode(code)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		expiresAt := time.Now().UTC().Add(inviteTTL)
		result, err := s.db.Exec(
			`INSERT INTO household_invites (household_id, invite_code, created_by, expires_at) VALUES (?, ?, ?, ?)`,
			householdID, code, createdBy, expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert invite: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		row := s.db.QueryRow(`SELECT `+inviteCols+` FROM household_invites WHERE id = ?`, id)
		return scanInvite(row)
	}
}

// GetValidInvite returns the household's unexpired invite, or nil.
func (s *HouseholdStore) GetValidInvite(householdID int64) (*model.HouseholdInvite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM household_invites
		 WHERE household_id = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		 ORDER BY created_at DESC LIMIT 1`,
		householdID,
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get valid invite: %w", err)
	}
	return inv, nil
}

// GetInviteByCode returns the unexpired invite with the given code, or nil.
func (s *HouseholdStore) GetInviteByCode(code string) (*model.HouseholdInvite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM household_invites
		 WHERE invite_code = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		code,
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite by code: %w", err)
	}
	return inv, nil
}

func (s *HouseholdStore) DeleteExpiredInvites() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM household_invites WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired invites: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
