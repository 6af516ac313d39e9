package tests

import (
	"net/http"
	"testing"

	"projecthub/projecthub/auth"

	"github.com/google/uuid"
)

func TestUserCrud(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)

	userId, err := admin.createUser("alice", "alice@mail.com", "alice_password", "lead")
	if err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	user, err := admin.getUser(userId)
	if err != nil {
		t.Fatal(err)
	}
	if user.Name != "alice" || user.Email != "alice@mail.com" || user.Role != "lead" {
		t.Fatalf("unexpected user info: %+v", user)
	}

	err = admin.updateUser(userId, map[string]interface{}{"name": "alice2", "role": "developer"})
	if err != nil {
		t.Fatal(err)
	}

	user, err = admin.getUser(userId)
	if err != nil {
		t.Fatal(err)
	}
	if user.Name != "alice2" || user.Role != "developer" {
		t.Fatalf("unexpected user info after update: %+v", user)
	}

	if err := admin.deleteUser(userId); err != nil {
		t.Fatal(err)
	}

	_, err = admin.getUser(userId)
	if responseCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)

	if _, err := admin.createUser("bob", "bob@mail.com", "bob_password", "developer"); err != nil {
		t.Fatal(err)
	}

	_, err := admin.createUser("bob2", "bob@mail.com", "other_password", "developer")
	if responseCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %v", err)
	}

	_, err = admin.createUser("carol", "carol@mail.com", "carol_password", "superuser")
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid role, got %v", err)
	}

	_, err = admin.createUser("dave", "dave@mail.com", "", "developer")
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %v", err)
	}
}

func TestNonAdminCannotManageUsers(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	dev := env.newUser(t, admin, "devuser", auth.RoleDeveloper)

	_, err := dev.listUsers()
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for developer, got %v", err)
	}

	_, err = dev.createUser("eve", "eve@mail.com", "eve_password", "admin")
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for developer, got %v", err)
	}

	err = dev.deleteUser(uuid.New())
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for developer, got %v", err)
	}
}

func TestLastAdminGuard(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)

	err := admin.updateUser(admin.userId, map[string]interface{}{"role": "developer"})
	if responseCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 demoting last admin, got %v", err)
	}

	err = admin.deleteUser(admin.userId)
	if responseCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 deleting last admin, got %v", err)
	}

	// With a second admin present both operations are allowed.
	secondId, err := admin.createUser("admin2", "admin2@mail.com", "admin2_password", "admin")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.updateUser(secondId, map[string]interface{}{"role": "lead"}); err != nil {
		t.Fatal(err)
	}
}

func TestAvailableUsers(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	env.newUser(t, admin, "lead1", auth.RoleLead)
	env.newUser(t, admin, "dev1", auth.RoleDeveloper)

	// This endpoint requires no token.
	anon := env.newClient()
	users, err := anon.availableUsers()
	if err != nil {
		t.Fatal(err)
	}

	if len(users) != 2 {
		t.Fatalf("expected 2 available users, got %d", len(users))
	}
	for _, u := range users {
		if u.Role == "admin" {
			t.Fatalf("admin should not appear in available users: %+v", u)
		}
	}
}
