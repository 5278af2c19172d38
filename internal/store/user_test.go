package store

import "testing"

func TestUserCreateAndGet(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	u, err := us.Create("alice@example.com", "Alice", "hash123")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.EmailVerified {
		t.Error("expected new user to be unverified")
	}

	got, err := us.GetByID(u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.Name != "Alice" {
		t.Errorf("expected Alice, got %+v", got)
	}

	byEmail, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail == nil || byEmail.ID != u.ID {
		t.Errorf("expected user %d, got %+v", u.ID, byEmail)
	}
}

func TestUserDuplicateEmail(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	if _, err := us.Create("alice@example.com", "Alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := us.Create("alice@example.com", "Other Alice", "hash"); err == nil {
		t.Error("expected error on duplicate email")
	}
}

func TestUserGetMissing(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	u, err := us.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing user")
	}

	u, err = us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing email")
	}
}

func TestUserUpdateNameAndPassword(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	u, _ := us.Create("alice@example.com", "Alice", "hash")

	updated, err := us.UpdateName(u.ID, "Alice B")
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if updated.Name != "Alice B" {
		t.Errorf("name = %q, want %q", updated.Name, "Alice B")
	}

	if err := us.SetPasswordHash(u.ID, "newhash"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	got, _ := us.GetByID(u.ID)
	if got.PasswordHash != "newhash" {
		t.Error("expected password hash to be updated")
	}
}

func TestUserMarkEmailVerified(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	u, _ := us.Create("alice@example.com", "Alice", "hash")
	if err := us.MarkEmailVerified(u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	got, _ := us.GetByID(u.ID)
	if !got.EmailVerified {
		t.Error("expected user to be verified")
	}
}

func TestUserDelete(t *testing.T) {
	db := openStoreDB(t)
	us := NewUserStore(db)

	u, _ := us.Create("alice@example.com", "Alice", "hash")
	if err := us.Delete(u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	got, _ := us.GetByID(u.ID)
	if got != nil {
		t.Error("expected user to be gone")
	}
}
