package tests

import (
	"net/http"
	"testing"
	"time"

	"projecthub/projecthub/auth"
	"projecthub/projecthub/storage"

	"github.com/google/uuid"
)

func TestProjectVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead1 := env.newUser(t, admin, "lead1", auth.RoleLead)
	lead2 := env.newUser(t, admin, "lead2", auth.RoleLead)
	dev1 := env.newUser(t, admin, "dev1", auth.RoleDeveloper)
	dev2 := env.newUser(t, admin, "dev2", auth.RoleDeveloper)

	p1 := env.createProject(t, admin, "p1", lead1.userId, []uuid.UUID{dev1.userId})
	p2 := env.createProject(t, admin, "p2", lead2.userId, []uuid.UUID{dev2.userId})

	checkVisible := func(c client, expected ...uuid.UUID) {
		t.Helper()
		projects, err := c.listProjects()
		if err != nil {
			t.Fatal(err)
		}
		if len(projects) != len(expected) {
			t.Fatalf("expected %d projects, got %d", len(expected), len(projects))
		}
		seen := make(map[uuid.UUID]bool)
		for _, p := range projects {
			seen[p.Id] = true
		}
		for _, id := range expected {
			if !seen[id] {
				t.Fatalf("expected project %v in listing", id)
			}
		}
	}

	checkVisible(admin, p1.Id, p2.Id)
	checkVisible(lead1, p1.Id)
	checkVisible(dev1, p1.Id)
	checkVisible(dev2, p2.Id)

	// Direct fetch follows the same policy.
	if _, err := dev1.getProject(p1.Id); err != nil {
		t.Fatal(err)
	}

	_, err := dev1.getProject(p2.Id)
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member fetch, got %v", err)
	}
}

func TestCompletedProjectsHiddenFromListing(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead := env.newUser(t, admin, "lead1", auth.RoleLead)

	project := env.createProject(t, admin, "p1", lead.userId, nil)

	if _, err := admin.updateProject(project.Id, map[string]interface{}{"status": "completed"}); err != nil {
		t.Fatal(err)
	}

	projects, err := admin.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Fatalf("completed project should be hidden from listing, got %d projects", len(projects))
	}

	// Completed projects remain reachable by direct fetch.
	fetched, err := admin.getProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != "completed" {
		t.Fatalf("expected status completed, got %v", fetched.Status)
	}
}

func TestProjectCreateValidation(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead := env.newUser(t, admin, "lead1", auth.RoleLead)

	_, err := admin.createProject(map[string]interface{}{"name": "p1"})
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %v", err)
	}

	deadline := time.Now().Add(24 * time.Hour).UTC()

	_, err = admin.createProject(map[string]interface{}{
		"name": "p1", "description": "d", "deadline": deadline, "lead": uuid.New(),
	})
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown lead, got %v", err)
	}

	// One bad id fails the whole team, nothing is partially created.
	_, err = admin.createProject(map[string]interface{}{
		"name": "p1", "description": "d", "deadline": deadline, "lead": lead.userId,
		"team": []uuid.UUID{lead.userId, uuid.New()},
	})
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown team member, got %v", err)
	}

	_, err = admin.createProject(map[string]interface{}{
		"name": "p1", "description": "d", "deadline": deadline, "lead": lead.userId,
		"status": "archived",
	})
	if responseCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %v", err)
	}

	// Creation is admin only.
	_, err = lead.createProject(map[string]interface{}{
		"name": "p1", "description": "d", "deadline": deadline, "lead": lead.userId,
	})
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for lead creating project, got %v", err)
	}
}

func TestProjectUpdate(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead1 := env.newUser(t, admin, "lead1", auth.RoleLead)
	lead2 := env.newUser(t, admin, "lead2", auth.RoleLead)
	dev := env.newUser(t, admin, "dev1", auth.RoleDeveloper)

	project := env.createProject(t, admin, "p1", lead1.userId, []uuid.UUID{dev.userId})

	updated, err := lead1.updateProject(project.Id, map[string]interface{}{"name": "p1-renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "p1-renamed" || updated.Description != project.Description {
		t.Fatalf("unexpected project after update: %+v", updated)
	}

	// An explicit empty string does not clear the field.
	updated, err = lead1.updateProject(project.Id, map[string]interface{}{"name": ""})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "p1-renamed" {
		t.Fatalf("empty name should be ignored, got '%v'", updated.Name)
	}

	// Lead reassignment by the lead is ignored, not rejected.
	updated, err = lead1.updateProject(project.Id, map[string]interface{}{"lead": lead2.userId})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Lead.Id != lead1.userId {
		t.Fatalf("lead should be unchanged, got %v", updated.Lead.Id)
	}

	// Admin reassignment is applied.
	updated, err = admin.updateProject(project.Id, map[string]interface{}{"lead": lead2.userId})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Lead.Id != lead2.userId {
		t.Fatalf("expected lead %v, got %v", lead2.userId, updated.Lead.Id)
	}

	// Team is replaced, not merged.
	updated, err = admin.updateProject(project.Id, map[string]interface{}{"team": []uuid.UUID{lead1.userId}})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Team) != 1 || updated.Team[0].Id != lead1.userId {
		t.Fatalf("unexpected team after replacement: %+v", updated.Team)
	}

	// A lead may not touch a project they do not lead.
	_, err = lead1.updateProject(project.Id, map[string]interface{}{"name": "nope"})
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for non-lead update, got %v", err)
	}

	_, err = admin.updateProject(uuid.New(), map[string]interface{}{"name": "missing"})
	if responseCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown project, got %v", err)
	}
}

func TestProjectDelete(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead := env.newUser(t, admin, "lead1", auth.RoleLead)

	project := env.createProject(t, admin, "p1", lead.userId, nil)

	if _, err := lead.uploadLink(project.Id, "design doc", "https://example.com/doc"); err != nil {
		t.Fatal(err)
	}
	fileDoc, err := lead.uploadFile(project.Id, "notes", "notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	err = lead.deleteProject(project.Id)
	if responseCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for lead delete, got %v", err)
	}

	if err := admin.deleteProject(project.Id); err != nil {
		t.Fatal(err)
	}

	_, err = admin.getProject(project.Id)
	if responseCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}

	// No documents may reference the deleted project.
	var count int64
	if err := env.db.Table("documents").Where("project_id = ?", project.Id).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0 documents after project delete, got %d", count)
	}

	exists, err := env.storage.Exists(storage.DocumentPath(project.Id, fileDoc.Id))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("payload should be removed from storage with the project")
	}

	err = admin.deleteProject(uuid.New())
	if responseCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown project, got %v", err)
	}
}

func TestProjectDocumentCount(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	lead := env.newUser(t, admin, "lead1", auth.RoleLead)

	project := env.createProject(t, admin, "p1", lead.userId, nil)

	for i := 0; i < 3; i++ {
		if _, err := lead.uploadLink(project.Id, "doc", "https://example.com/doc"); err != nil {
			t.Fatal(err)
		}
	}

	projects, err := admin.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].DocumentCount != 3 {
		t.Fatalf("expected document count 3, got %+v", projects)
	}
}
