// Package directory provides model.UserDirectory implementations: a static
// YAML file, a Postgres users table and a TTL cache in front of either.
package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/signoff/model"
)

type usersFile struct {
	Users []model.User `yaml:"users"`
}

// StaticDirectory serves users from a YAML file. Users are returned in file
// order.
type StaticDirectory struct {
	path  string
	mu    sync.RWMutex
	users []model.User
}

// NewStaticDirectory creates a directory that loads users from path.
func NewStaticDirectory(path string) (*StaticDirectory, error) {
	d := &StaticDirectory{path: path}
	if err := d.Sync(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewStaticDirectoryFromUsers creates a directory over an in-memory user list.
func NewStaticDirectoryFromUsers(users []model.User) *StaticDirectory {
	return &StaticDirectory{users: append([]model.User(nil), users...)}
}

// FindUsersByRole returns users holding any of roles.
func (d *StaticDirectory) FindUsersByRole(_ context.Context, roles []string) ([]model.User, error) {
	want := make(map[string]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []model.User
	for _, u := range d.users {
		if want[u.Role] {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindUsersByDepartment returns users in department.
func (d *StaticDirectory) FindUsersByDepartment(_ context.Context, department string) ([]model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []model.User
	for _, u := range d.users {
		if u.Department == department {
			out = append(out, u)
		}
	}
	return out, nil
}

// Len returns the number of users loaded.
func (d *StaticDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Sync reloads the users file from disk.
func (d *StaticDirectory) Sync() error {
	if d.path == "" {
		return nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("directory: reading users file %s: %w", d.path, err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("directory: parsing users file %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.users = f.Users
	d.mu.Unlock()

	return nil
}
