package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name     string `gorm:"size:100"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role string `gorm:"size:20;not null;default:'developer'"`

	CreatedAt time.Time
}

type Project struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string    `gorm:"size:100;not null"`
	Description string    `gorm:"not null"`
	Deadline    time.Time `gorm:"not null;index:idx_projects_status_deadline"`

	Status string `gorm:"size:20;not null;default:'active';index:idx_projects_status_deadline"`

	LeadId uuid.UUID `gorm:"type:uuid;not null"`
	Lead   *User     `gorm:"foreignKey:LeadId"`

	Team []ProjectMember `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
}

type ProjectMember struct {
	ProjectId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId    uuid.UUID `gorm:"type:uuid;primaryKey"`

	User *User
}

type Document struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name string `gorm:"size:255;not null"`

	// File form: content type + byte size stored here, payload held in blob
	// storage under DocumentPath. Link form: Link set, no payload.
	// Exactly one form holds for every record.
	ContentType string `gorm:"size:100"`
	Size        int64
	Link        string `gorm:"size:2048"`

	UploadedBy uuid.UUID `gorm:"type:uuid;not null"`
	Uploader   *User     `gorm:"foreignKey:UploadedBy"`

	CreatedAt time.Time
}

func (d *Document) IsFile() bool {
	return d.Link == ""
}
