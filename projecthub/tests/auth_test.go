package tests

import (
	"net/http"
	"testing"

	"projecthub/projecthub/auth"
)

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)

	info, err := admin.me()
	if err != nil {
		t.Fatal(err)
	}

	if info.Email != adminEmail || info.Name != adminName || info.Role != "admin" {
		t.Fatalf("unexpected user info: %+v", info)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	wrongPassword := c.login(adminEmail, "wrong_password")
	if responseCode(wrongPassword) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %v", wrongPassword)
	}

	unknownEmail := c.login("nobody@mail.com", "some_password")
	if responseCode(unknownEmail) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %v", unknownEmail)
	}

	// The two failures must be indistinguishable so the endpoint cannot be
	// used to enumerate accounts.
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("login errors differ: '%v' vs '%v'", wrongPassword, unknownEmail)
	}
}

func TestLoginMissingFields(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	err := c.Post("/auth/login").Json(map[string]string{"email": adminEmail}).Do(nil)
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	err := c.Get("/auth/me").Do(nil)
	if responseCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	err = c.Get("/auth/me").Auth("not-a-real-token").Do(nil)
	if responseCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %v", err)
	}

	err = c.Get("/projects/").Do(nil)
	if responseCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	dev := env.newUser(t, admin, "pwuser", auth.RoleDeveloper)

	err := dev.changePassword("wrong_password", "updated_password")
	if responseCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %v", err)
	}

	if err := dev.changePassword("pwuser_password", "updated_password"); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	err = c.login("pwuser@mail.com", "pwuser_password")
	if responseCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}

	if err := c.login("pwuser@mail.com", "updated_password"); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	if err := c.Get("/health").Do(nil); err != nil {
		t.Fatal(err)
	}
}
