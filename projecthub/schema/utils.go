package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDbAccessFailed   = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetProject(projectId uuid.UUID, db *gorm.DB, loadRefs bool) (Project, error) {
	var project Project

	var result *gorm.DB = db
	if loadRefs {
		result = result.Preload("Lead").Preload("Team").Preload("Team.User")
	}
	result = result.First(&project, "id = ?", projectId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		slog.Error("sql error in get project", "project_id", projectId, "error", result.Error)
		return project, ErrDbAccessFailed
	}

	return project, nil
}

func GetDocument(docId uuid.UUID, db *gorm.DB, loadUploader bool) (Document, error) {
	var doc Document

	var result *gorm.DB = db
	if loadUploader {
		result = result.Preload("Uploader")
	}
	result = result.First(&doc, "id = ?", docId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return doc, ErrDocumentNotFound
		}
		slog.Error("sql error in get document", "document_id", docId, "error", result.Error)
		return doc, ErrDbAccessFailed
	}

	return doc, nil
}

// IsTeamMember reports whether the user appears in the project's team. The
// project lead is not implicitly a member.
func (p *Project) IsTeamMember(userId uuid.UUID) bool {
	for _, member := range p.Team {
		if member.UserId == userId {
			return true
		}
	}
	return false
}
