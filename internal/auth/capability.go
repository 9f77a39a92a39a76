// Package auth resolves the caller's capability once per request and answers
// every authorization question through Authorize.
package auth

import (
	"slices"

	"github.com/kirinyoku/cinetix/internal/domain"
)

// Capability is the resolved identity of a caller. TheaterScope is only
// populated for theater administrators.
type Capability struct {
	SubjectID    int64
	Role         domain.Role
	TheaterScope []int64
}

func (c Capability) IsAdmin() bool {
	switch c.Role {
	case domain.RoleAdmin, domain.RoleTheaterAdmin, domain.RoleSuperAdmin:
		return true
	}
	return false
}

// ScopedTheaters returns the theaters the caller is limited to, or nil when
// the caller sees every theater.
func (c Capability) ScopedTheaters() []int64 {
	if c.Role == domain.RoleSuperAdmin {
		return nil
	}
	if c.TheaterScope == nil {
		return []int64{}
	}
	return c.TheaterScope
}

type Action string

const (
	ActionScanTicket         Action = "ticket.scan"
	ActionUpdateTicketStatus Action = "ticket.update_status"
	ActionViewTicket         Action = "ticket.view"
	ActionManageSchedule     Action = "schedule.manage"
	ActionManageScreen       Action = "screen.manage"
	ActionCreateTheater      Action = "theater.create"
	ActionAssignAdmin        Action = "theater.assign_admin"
	ActionRemoveAdmin        Action = "theater.remove_admin"
	ActionManageMovie        Action = "movie.manage"
	ActionDeleteMovie        Action = "movie.delete"
)

type rule struct {
	roles  []domain.Role
	scoped bool
}

var policy = map[Action]rule{
	ActionScanTicket:         {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleTheaterAdmin}, scoped: true},
	ActionUpdateTicketStatus: {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleTheaterAdmin}, scoped: true},
	ActionViewTicket:         {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleTheaterAdmin}, scoped: true},
	ActionManageSchedule:     {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleTheaterAdmin}, scoped: true},
	ActionManageScreen:       {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleTheaterAdmin}, scoped: true},
	ActionCreateTheater:      {roles: []domain.Role{domain.RoleSuperAdmin}},
	ActionAssignAdmin:        {roles: []domain.Role{domain.RoleSuperAdmin}},
	ActionRemoveAdmin:        {roles: []domain.Role{domain.RoleSuperAdmin}},
	ActionManageMovie:        {roles: []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}},
	ActionDeleteMovie:        {roles: []domain.Role{domain.RoleSuperAdmin}},
}

var (
	ErrRoleNotAllowed    = domain.Forbidden("role is not allowed to perform this action")
	ErrTheaterOutOfScope = domain.Forbidden("not authorized for this theater")
)

// AuthorizeRole checks only the role part of the policy. Listings use it and
// then narrow their results with ScopedTheaters.
func AuthorizeRole(c Capability, action Action) error {
	r, ok := policy[action]
	if !ok || !slices.Contains(r.roles, c.Role) {
		return ErrRoleNotAllowed
	}
	return nil
}

// Authorize reports whether c may perform action. theaterID is ignored for
// actions that are not theater scoped.
func Authorize(c Capability, action Action, theaterID int64) error {
	if err := AuthorizeRole(c, action); err != nil {
		return err
	}

	r := policy[action]

	if !r.scoped || c.Role == domain.RoleSuperAdmin {
		return nil
	}

	if !slices.Contains(c.TheaterScope, theaterID) {
		return ErrTheaterOutOfScope
	}

	return nil
}
