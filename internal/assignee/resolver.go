// Package assignee turns a step's assignee rule into a concrete list of user
// IDs.
package assignee

import (
	"context"
	"fmt"

	"github.com/pitabwire/signoff/model"
)

// Resolver resolves assignee rules against a user directory.
type Resolver struct {
	directory model.UserDirectory
}

// NewResolver creates a Resolver over directory.
func NewResolver(directory model.UserDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve returns the deduplicated user IDs for rule in directory order.
// Callers treat an error as an empty assignee set.
func (r *Resolver) Resolve(ctx context.Context, rule model.AssigneeRule) ([]string, error) {
	switch rule := rule.(type) {
	case model.UsersRule:
		return dedupe(rule.UserIDs), nil
	case model.RolesRule:
		if len(rule.Roles) == 0 {
			return nil, nil
		}
		users, err := r.directory.FindUsersByRole(ctx, rule.Roles)
		if err != nil {
			return nil, fmt.Errorf("assignee: resolving roles %v: %w", rule.Roles, err)
		}
		return userIDs(users), nil
	case model.DepartmentRule:
		if rule.Department == "" {
			return nil, nil
		}
		users, err := r.directory.FindUsersByDepartment(ctx, rule.Department)
		if err != nil {
			return nil, fmt.Errorf("assignee: resolving department %q: %w", rule.Department, err)
		}
		return userIDs(users), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("assignee: unsupported rule %T", rule)
	}
}

// ResolveStep resolves the assignees declared on step.
func (r *Resolver) ResolveStep(ctx context.Context, step model.StepDefinition) ([]string, error) {
	rule, err := step.Assignees.Rule()
	if err != nil {
		return nil, fmt.Errorf("assignee: step %q: %w", step.ID, err)
	}
	return r.Resolve(ctx, rule)
}

func userIDs(users []model.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
