package model

import (
	"context"
	"fmt"
)

// Assignee rule types as written in definition files.
const (
	AssigneeTypeUsers      = "users"
	AssigneeTypeRoles      = "roles"
	AssigneeTypeDepartment = "department"
)

// Assignees is the file representation of an assignee rule. Use Rule to get
// the typed variant.
type Assignees struct {
	Type       string   `yaml:"type"       json:"type"`
	Users      []string `yaml:"users"      json:"users,omitempty"`
	Roles      []string `yaml:"roles"      json:"roles,omitempty"`
	Department string   `yaml:"department" json:"department,omitempty"`
}

// Rule converts the file representation into its AssigneeRule variant.
func (a Assignees) Rule() (AssigneeRule, error) {
	switch a.Type {
	case AssigneeTypeUsers:
		return UsersRule{UserIDs: a.Users}, nil
	case AssigneeTypeRoles:
		return RolesRule{Roles: a.Roles}, nil
	case AssigneeTypeDepartment:
		return DepartmentRule{Department: a.Department}, nil
	default:
		return nil, fmt.Errorf("unknown assignee type %q", a.Type)
	}
}

// AssigneeRule is one of UsersRule, RolesRule or DepartmentRule.
type AssigneeRule interface {
	assigneeRule()
}

// UsersRule names the assignees directly.
type UsersRule struct {
	UserIDs []string
}

// RolesRule assigns every user holding any of the roles.
type RolesRule struct {
	Roles []string
}

// DepartmentRule assigns every user in the department.
type DepartmentRule struct {
	Department string
}

func (UsersRule) assigneeRule()      {}
func (RolesRule) assigneeRule()      {}
func (DepartmentRule) assigneeRule() {}

// User roles known to the directory.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleReviewer = "reviewer"
	RoleEditor   = "editor"
	RoleViewer   = "viewer"
)

// User is a directory entry.
type User struct {
	ID         string `yaml:"id"         json:"id"`
	Name       string `yaml:"name"       json:"name,omitempty"`
	Email      string `yaml:"email"      json:"email,omitempty"`
	Role       string `yaml:"role"       json:"role"`
	Department string `yaml:"department" json:"department,omitempty"`
}

// UserDirectory looks up users by role or department. Implementations return
// users in a stable order.
type UserDirectory interface {
	FindUsersByRole(ctx context.Context, roles []string) ([]User, error)
	FindUsersByDepartment(ctx context.Context, department string) ([]User, error)
}
