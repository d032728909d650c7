package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"scenerepo/internal/acl"
	"scenerepo/internal/loader"
	"scenerepo/internal/storage"
	"scenerepo/internal/watcher"
)

// RoleStore is the subset of the storage handler used to provision roles
type RoleStore interface {
	ProvisionRole(ctx context.Context, database, name string, perms []acl.Permission, inherited []acl.RoleRef) (acl.Role, error)
	FindRole(ctx context.Context, database, name string) (acl.Role, error)
	CreateUser(ctx context.Context, database string, user storage.User) error
}

// RoleService provisions project roles and accounts
type RoleService struct {
	store    RoleStore
	eventBus *EventBus

	// serialises runs triggered by file changes
	mu sync.Mutex
}

// NewRoleService creates a new role service
func NewRoleService(store RoleStore, eventBus *EventBus) *RoleService {
	return &RoleService{
		store:    store,
		eventBus: eventBus,
	}
}

// Provision upserts every role in defs, then creates every user. Users
// that already exist are left unchanged. All failures are reported
// together; provisioning continues past them.
func (s *RoleService) Provision(ctx context.Context, defs *loader.Definitions) (ProvisionedPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result ProvisionedPayload
		errs   []error
	)

	for _, r := range defs.Roles {
		if _, err := s.store.ProvisionRole(ctx, r.Database, r.Name, r.Permissions, r.Inherited); err != nil {
			errs = append(errs, fmt.Errorf("role %s.%s: %w", r.Database, r.Name, err))
			continue
		}
		result.Roles++
	}

	for _, u := range defs.Users {
		err := s.store.CreateUser(ctx, u.Database, u.User)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			glog.V(1).Infof("User %s.%s already exists", u.Database, u.User.Username)
		case err != nil:
			errs = append(errs, fmt.Errorf("user %s.%s: %w", u.Database, u.User.Username, err))
			continue
		}
		result.Users++
	}

	err := errors.Join(errs...)
	if err != nil {
		result.Error = err.Error()
		s.eventBus.Publish(Event{Type: EventRolesFailed, Payload: result})
		return result, err
	}

	glog.Infof("Provisioned %d roles and %d users", result.Roles, result.Users)
	s.eventBus.Publish(Event{Type: EventRolesProvisioned, Payload: result})
	return result, nil
}

// ProvisionFile loads a roles file and provisions it
func (s *RoleService) ProvisionFile(ctx context.Context, path string) (ProvisionedPayload, error) {
	defs, err := loader.LoadRoles(path)
	if err != nil {
		result := ProvisionedPayload{Error: err.Error()}
		s.eventBus.Publish(Event{Type: EventRolesFailed, Payload: result})
		return result, fmt.Errorf("failed to load roles from %s: %w", path, err)
	}
	return s.Provision(ctx, defs)
}

// Permissions returns the per-project rights a stored role grants
func (s *RoleService) Permissions(ctx context.Context, database, name string) ([]acl.Permission, error) {
	role, err := s.store.FindRole(ctx, database, name)
	if err != nil {
		return nil, err
	}
	return role.ProjectAccessRights(), nil
}

// WatchFile provisions path every time it changes until ctx is cancelled
func (s *RoleService) WatchFile(ctx context.Context, path string) error {
	w := watcher.New(path, func() {
		if _, err := s.ProvisionFile(ctx, path); err != nil {
			glog.Errorf("Roles reload failed: %v", err)
		}
	})
	return w.Watch(ctx)
}
