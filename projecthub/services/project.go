package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"projecthub/projecthub/auth"
	"projecthub/projecthub/schema"
	"projecthub/projecthub/storage"
	"projecthub/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectService struct {
	db        *gorm.DB
	store     storage.Storage
	authn     *auth.Authenticator
	documents DocumentService
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	// The user picker for the project form. Left open, matching the original
	// routing; it only exposes display fields for non-admin users.
	r.Get("/available-users", s.AvailableUsers)

	r.Group(func(r chi.Router) {
		r.Use(s.authn.AuthMiddleware()...)

		r.Get("/", s.List)
		r.With(auth.AdminOnly()).Post("/", s.Create)

		r.Route("/{project_id}", func(r chi.Router) {
			r.Get("/", s.Get)
			r.With(auth.RoleOnly(auth.RoleAdmin, auth.RoleLead)).Put("/", s.Update)
			r.With(auth.AdminOnly()).Delete("/", s.Delete)

			r.Mount("/documents", s.documents.Routes())
		})
	})

	return r
}

type ProjectInfo struct {
	Id          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Deadline    time.Time  `json:"deadline"`
	Status      string     `json:"status"`
	Lead        UserInfo   `json:"lead"`
	Team        []UserInfo `json:"team"`

	DocumentCount int64 `json:"document_count"`

	CreatedAt time.Time `json:"created_at"`
}

func convertToProjectInfo(project *schema.Project, documentCount int64) ProjectInfo {
	info := ProjectInfo{
		Id:            project.Id,
		Name:          project.Name,
		Description:   project.Description,
		Deadline:      project.Deadline,
		Status:        project.Status,
		Team:          make([]UserInfo, 0, len(project.Team)),
		DocumentCount: documentCount,
		CreatedAt:     project.CreatedAt,
	}

	if project.Lead != nil {
		info.Lead = convertToUserInfo(project.Lead)
	} else {
		// Lead was deleted; only the id survives.
		info.Lead = UserInfo{Id: project.LeadId}
	}

	for _, member := range project.Team {
		if member.User != nil {
			info.Team = append(info.Team, convertToUserInfo(member.User))
		} else {
			info.Team = append(info.Team, UserInfo{Id: member.UserId})
		}
	}

	return info
}

func documentCounts(db *gorm.DB, projectIds []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(projectIds))
	if len(projectIds) == 0 {
		return counts, nil
	}

	var rows []struct {
		ProjectId uuid.UUID
		Count     int64
	}
	result := db.Model(&schema.Document{}).
		Select("project_id, count(*) as count").
		Where("project_id IN ?", projectIds).
		Group("project_id").
		Find(&rows)
	if result.Error != nil {
		slog.Error("sql error counting project documents", "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	for _, row := range rows {
		counts[row.ProjectId] = row.Count
	}
	return counts, nil
}

func checkValidStatus(status string) error {
	if status != schema.StatusActive && status != schema.StatusCompleted {
		return fmt.Errorf("invalid status '%v', must be 'active' or 'completed'", status)
	}
	return nil
}

// visibleProjects builds the listing predicate for the actor. Completed
// projects are hidden from the list view for every role, including admin;
// they remain reachable by direct fetch.
func (s *ProjectService) visibleProjects(actor auth.Actor) *gorm.DB {
	query := s.db.Model(&schema.Project{}).Where("status = ?", schema.StatusActive)

	memberOf := s.db.Model(&schema.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.Id)

	switch actor.Role {
	case auth.RoleAdmin:
		return query
	case auth.RoleLead:
		return query.Where("lead_id = ? OR id IN (?)", actor.Id, memberOf)
	case auth.RoleDeveloper:
		return query.Where("id IN (?)", memberOf)
	default:
		return query.Where("1 = 0")
	}
}

func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r)
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var projects []schema.Project
	result := s.visibleProjects(actor).
		Preload("Lead").Preload("Team").Preload("Team.User").
		Order("created_at desc").
		Find(&projects)
	if result.Error != nil {
		slog.Error("sql error listing projects", "user_id", actor.Id, "error", result.Error)
		utils.HttpError(w, fmt.Sprintf("error listing projects: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	ids := make([]uuid.UUID, 0, len(projects))
	for _, project := range projects {
		ids = append(ids, project.Id)
	}

	counts, err := documentCounts(s.db, ids)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	infos := make([]ProjectInfo, 0, len(projects))
	for i := range projects {
		infos = append(infos, convertToProjectInfo(&projects[i], counts[projects[i].Id]))
	}

	utils.WriteJsonResponse(w, infos)
}

type createProjectRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Deadline    time.Time   `json:"deadline"`
	Status      string      `json:"status"`
	Lead        uuid.UUID   `json:"lead"`
	Team        []uuid.UUID `json:"team"`
}

// checkTeamExists resolves the full member list in one batch and requires
// every id to match an existing user. Either the whole team is valid or the
// operation fails; no partial team is ever persisted.
func checkTeamExists(txn *gorm.DB, team []uuid.UUID) error {
	if len(team) == 0 {
		return nil
	}

	var count int64
	result := txn.Model(&schema.User{}).Where("id IN ?", team).Count(&count)
	if result.Error != nil {
		slog.Error("sql error resolving team members", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if count != int64(len(team)) {
		return CodedError(errors.New("one or more team members not found"), http.StatusBadRequest)
	}

	return nil
}

func teamMembers(projectId uuid.UUID, team []uuid.UUID) []schema.ProjectMember {
	members := make([]schema.ProjectMember, 0, len(team))
	for _, userId := range team {
		members = append(members, schema.ProjectMember{ProjectId: projectId, UserId: userId})
	}
	return members
}

func (s *ProjectService) Create(w http.ResponseWriter, r *http.Request) {
	var params createProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" || params.Description == "" || params.Deadline.IsZero() || params.Lead == uuid.Nil {
		utils.HttpError(w, "please provide name, description, deadline, and lead", http.StatusBadRequest)
		return
	}

	if params.Status == "" {
		params.Status = schema.StatusActive
	}
	if err := checkValidStatus(params.Status); err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	project := schema.Project{
		Id:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Deadline:    params.Deadline,
		Status:      params.Status,
		LeadId:      params.Lead,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := schema.GetUser(params.Lead, txn); err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(errors.New("lead user not found"), http.StatusBadRequest)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkTeamExists(txn, params.Team); err != nil {
			return err
		}

		project.Team = teamMembers(project.Id, params.Team)

		result := txn.Create(&project)
		if result.Error != nil {
			slog.Error("sql error creating new project", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error creating project: %v", err), GetResponseCode(err))
		return
	}

	s.writeProject(w, project.Id)
}

func (s *ProjectService) writeProject(w http.ResponseWriter, projectId uuid.UUID) {
	project, err := schema.GetProject(projectId, s.db, true)
	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error loading project: %v", err), http.StatusInternalServerError)
		return
	}

	counts, err := documentCounts(s.db, []uuid.UUID{projectId})
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToProjectInfo(&project, counts[projectId]))
}

func (s *ProjectService) Get(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.ActorFromContext(r)
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	project, err := schema.GetProject(projectId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			utils.HttpError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.HttpError(w, fmt.Sprintf("error loading project: %v", err), http.StatusInternalServerError)
		return
	}

	if !auth.CanViewProject(actor, &project) {
		utils.HttpError(w, "you do not have permission to view this project", http.StatusForbidden)
		return
	}

	counts, err := documentCounts(s.db, []uuid.UUID{projectId})
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToProjectInfo(&project, counts[projectId]))
}

// updateProjectRequest distinguishes absent fields from supplied ones; an
// absent field keeps its stored value. Supplied empty strings are also
// ignored rather than clearing the field, preserving the partial-update
// semantics clients already rely on.
type updateProjectRequest struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Deadline    *time.Time   `json:"deadline"`
	Status      *string      `json:"status"`
	Lead        *uuid.UUID   `json:"lead"`
	Team        *[]uuid.UUID `json:"team"`
}

func (s *ProjectService) Update(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.ActorFromContext(r)
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err := schema.GetProject(projectId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !auth.CanEditProject(actor, &project) {
			return CodedError(errors.New("you do not have permission to update this project"), http.StatusForbidden)
		}

		if params.Name != nil && *params.Name != "" {
			project.Name = *params.Name
		}
		if params.Description != nil && *params.Description != "" {
			project.Description = *params.Description
		}
		if params.Deadline != nil && !params.Deadline.IsZero() {
			project.Deadline = *params.Deadline
		}
		if params.Status != nil && *params.Status != "" {
			if err := checkValidStatus(*params.Status); err != nil {
				return CodedError(err, http.StatusBadRequest)
			}
			project.Status = *params.Status
		}

		// Lead reassignment by a non-admin is ignored, not rejected.
		if params.Lead != nil && auth.CanReassignLead(actor) {
			if _, err := schema.GetUser(*params.Lead, txn); err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					return CodedError(errors.New("lead user not found"), http.StatusBadRequest)
				}
				return CodedError(err, http.StatusInternalServerError)
			}
			project.LeadId = *params.Lead
		}

		if params.Team != nil {
			if err := checkTeamExists(txn, *params.Team); err != nil {
				return err
			}

			// Team replacement, not merge.
			result := txn.Where("project_id = ?", projectId).Delete(&schema.ProjectMember{})
			if result.Error != nil {
				slog.Error("sql error clearing project team", "project_id", projectId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			if len(*params.Team) > 0 {
				members := teamMembers(projectId, *params.Team)
				result = txn.Create(&members)
				if result.Error != nil {
					slog.Error("sql error replacing project team", "project_id", projectId, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}

		result := txn.Save(&project)
		if result.Error != nil {
			slog.Error("sql error updating project", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error updating project: %v", err), GetResponseCode(err))
		return
	}

	s.writeProject(w, projectId)
}

func (s *ProjectService) Delete(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProjectExists(txn, projectId); err != nil {
			return err
		}

		// Documents are removed before the project record so no document ever
		// references a missing project, even transiently.
		result := txn.Where("project_id = ?", projectId).Delete(&schema.Document{})
		if result.Error != nil {
			slog.Error("sql error deleting project documents", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := s.store.Delete(storage.ProjectDocumentsPath(projectId)); err != nil {
			slog.Error("error deleting project document blobs", "project_id", projectId, "error", err)
			return CodedError(errors.New("error deleting project documents"), http.StatusInternalServerError)
		}

		result = txn.Where("project_id = ?", projectId).Delete(&schema.ProjectMember{})
		if result.Error != nil {
			slog.Error("sql error deleting project team", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.Project{Id: projectId})
		if result.Error != nil {
			slog.Error("sql error deleting project", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error deleting project: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ProjectService) AvailableUsers(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.
		Where("role IN ?", []string{string(auth.RoleLead), string(auth.RoleDeveloper)}).
		Order("name asc").
		Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing available users", "error", result.Error)
		utils.HttpError(w, fmt.Sprintf("error listing available users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}
