package auth

import (
	"testing"

	"projecthub/projecthub/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, value := range []string{"admin", "lead", "developer"} {
		role, err := ParseRole(value)
		assert.NoError(t, err)
		assert.Equal(t, Role(value), role)
	}

	for _, value := range []string{"", "Admin", "superuser", "ADMIN"} {
		_, err := ParseRole(value)
		assert.Error(t, err, "value %v should be rejected", value)
	}
}

func TestProjectPolicy(t *testing.T) {
	adminId := uuid.New()
	leadId := uuid.New()
	memberId := uuid.New()
	outsiderId := uuid.New()

	admin := Actor{Id: adminId, Role: RoleAdmin}
	lead := Actor{Id: leadId, Role: RoleLead}
	member := Actor{Id: memberId, Role: RoleDeveloper}
	outsider := Actor{Id: outsiderId, Role: RoleDeveloper}
	outsideLead := Actor{Id: outsiderId, Role: RoleLead}

	project := &schema.Project{
		Id:     uuid.New(),
		LeadId: leadId,
		Team:   []schema.ProjectMember{{UserId: memberId}},
	}

	tests := []struct {
		name   string
		actor  Actor
		view   bool
		edit   bool
		manage bool
	}{
		{name: "admin", actor: admin, view: true, edit: true, manage: true},
		{name: "project lead", actor: lead, view: true, edit: true, manage: true},
		{name: "team member", actor: member, view: true, edit: false, manage: false},
		{name: "outside developer", actor: outsider, view: false, edit: false, manage: false},
		{name: "outside lead", actor: outsideLead, view: false, edit: false, manage: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.view, CanViewProject(tc.actor, project))
			assert.Equal(t, tc.edit, CanEditProject(tc.actor, project))
			assert.Equal(t, tc.manage, CanManageDocuments(tc.actor, project))
		})
	}

	assert.True(t, CanReassignLead(admin))
	assert.False(t, CanReassignLead(lead))
	assert.False(t, CanReassignLead(member))

	assert.True(t, CanDeleteProject(admin))
	assert.False(t, CanDeleteProject(lead))
	assert.False(t, CanDeleteProject(member))
}

// A lead who is only a team member elsewhere can view but not edit there.
func TestLeadAsTeamMember(t *testing.T) {
	leadId := uuid.New()
	lead := Actor{Id: leadId, Role: RoleLead}

	other := &schema.Project{
		Id:     uuid.New(),
		LeadId: uuid.New(),
		Team:   []schema.ProjectMember{{UserId: leadId}},
	}

	assert.True(t, CanViewProject(lead, other))
	assert.False(t, CanEditProject(lead, other))
	assert.False(t, CanManageDocuments(lead, other))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@mail.com", NormalizeEmail("  User@Mail.COM "))
}
