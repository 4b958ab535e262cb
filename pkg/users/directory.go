// Package users provides the user directory the membership engine depends on.
//
// The engine never owns user records. It looks users up by id or email and
// keeps three denormalized pointers on them up to date: the default
// organization, the last active organization and the list of organizations
// the user belongs to.
package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/membership/pkg/models"
)

// ErrUserNotFound is returned when the directory has no matching user
var ErrUserNotFound = fmt.Errorf("%w: user", models.ErrNotFound)

// Directory looks up users and maintains their organization pointers
type Directory interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateOrganizationPointer(ctx context.Context, userID string, update models.PointerUpdate) error
}

// Registry is a Directory that can also register users
type Registry interface {
	Directory
	UpsertUser(ctx context.Context, user *models.User) error
}

// MemoryDirectory is an in-process Directory
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

var _ Registry = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*models.User)}
}

// AddUser registers or replaces a user
func (d *MemoryDirectory) AddUser(user *models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := user.Clone()
	u.Email = models.NormalizeEmail(u.Email)
	d.users[u.ID] = u
}

// UpsertUser implements Registry
func (d *MemoryDirectory) UpsertUser(_ context.Context, user *models.User) error {
	d.AddUser(user)
	return nil
}

func (d *MemoryDirectory) GetUserByID(_ context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUserNotFound, id)
	}
	return u.Clone(), nil
}

func (d *MemoryDirectory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrUserNotFound, email)
}

func (d *MemoryDirectory) UpdateOrganizationPointer(_ context.Context, userID string, update models.PointerUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return fmt.Errorf("%w %s", ErrUserNotFound, userID)
	}
	next := u.Clone()
	update.Apply(next)
	d.users[userID] = next
	return nil
}

// IsNotFound reports whether err means the user does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
