package tests

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"projecthub/projecthub/auth"
	"projecthub/projecthub/schema"
	"projecthub/projecthub/services"
	"projecthub/projecthub/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.Platform
	api      chi.Router
	storage  storage.Storage
	db       *gorm.DB
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Project{}, &schema.ProjectMember{}, &schema.Document{},
	)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	authenticator, err := auth.NewAuthenticator(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.AuthenticatorArgs{
			Secret:        []byte("290zcv02ai249"),
			TokenTtl:      time.Hour,
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	platform := services.NewPlatform(db, store, authenticator)

	return &testEnv{platform: platform, api: platform.Routes(), storage: store, db: db}
}

func (env *testEnv) newClient() client {
	return client{api: env.api}
}

func (env *testEnv) adminClient(t *testing.T) client {
	c := env.newClient()
	if err := c.login(adminEmail, adminPassword); err != nil {
		t.Fatal(err)
	}
	return c
}

// newUser creates a user with the given role via the admin api and returns a
// client logged in as that user.
func (env *testEnv) newUser(t *testing.T, admin client, name string, role auth.Role) client {
	email := name + "@mail.com"
	password := name + "_password"

	if _, err := admin.createUser(name, email, password, string(role)); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if err := c.login(email, password); err != nil {
		t.Fatal(err)
	}
	return c
}

func (env *testEnv) createProject(t *testing.T, admin client, name string, lead uuid.UUID, team []uuid.UUID) services.ProjectInfo {
	project, err := admin.createProject(map[string]interface{}{
		"name":        name,
		"description": fmt.Sprintf("description of %v", name),
		"deadline":    time.Now().Add(30 * 24 * time.Hour).UTC(),
		"lead":        lead,
		"team":        team,
	})
	if err != nil {
		t.Fatal(err)
	}
	return project
}
