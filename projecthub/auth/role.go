package auth

import (
	"fmt"
	"net/http"
	"projecthub/projecthub/schema"
	"projecthub/utils"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLead      Role = "lead"
	RoleDeveloper Role = "developer"
)

func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleLead, RoleDeveloper:
		return Role(value), nil
	default:
		return "", fmt.Errorf("invalid role '%v', must be one of 'admin', 'lead', or 'developer'", value)
	}
}

// Actor is the identity attached to a request. It is decoded from the token
// payload, so it reflects the user's role at the time the token was issued.
type Actor struct {
	Id    uuid.UUID
	Name  string
	Email string
	Role  Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func CanViewProject(actor Actor, project *schema.Project) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleLead, RoleDeveloper:
		return actor.Id == project.LeadId || project.IsTeamMember(actor.Id)
	default:
		return false
	}
}

// CanEditProject covers name/description/deadline/status/team. Lead
// reassignment is gated separately by CanReassignLead.
func CanEditProject(actor Actor, project *schema.Project) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleLead, RoleDeveloper:
		return actor.Id == project.LeadId
	default:
		return false
	}
}

func CanReassignLead(actor Actor) bool {
	return actor.Role == RoleAdmin
}

func CanDeleteProject(actor Actor) bool {
	return actor.Role == RoleAdmin
}

// CanManageDocuments covers upload and delete. Listing and downloading only
// require CanViewProject on the owning project.
func CanManageDocuments(actor Actor, project *schema.Project) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleLead, RoleDeveloper:
		return actor.Id == project.LeadId
	default:
		return false
	}
}

// RoleOnly rejects requests whose actor's role is not in the allow-list.
func RoleOnly(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			actor, err := ActorFromContext(r)
			if err != nil {
				utils.HttpError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			utils.HttpError(w, "access denied", http.StatusForbidden)
		}
		return http.HandlerFunc(hfn)
	}
}

func AdminOnly() func(http.Handler) http.Handler {
	return RoleOnly(RoleAdmin)
}
