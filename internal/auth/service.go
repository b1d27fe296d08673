package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reserv.org/internal/obs"
)

// Service resolves identities, roles and permissions. It is the single
// authority for the "does user U have permission P" question.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service backed by the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EnsureBuiltins makes sure the predefined permission catalog and the builtin
// roles exist. Safe to call on every start; existing roles keep whatever
// permission sets an operator gave them.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	perms := s.store.Permissions(ctx)
	if err := perms.Ensure(ctx, BuiltinPermissions); err != nil {
		return err
	}
	roles := s.store.Roles(ctx)
	for name, keys := range BuiltinRoles {
		if _, err := roles.FindByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		role := &Role{Name: name, CreatedAt: s.now().UTC()}
		err := roles.Create(ctx, role)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return err
		}
		if err := perms.SetForRole(ctx, role.ID, keys); err != nil {
			return err
		}
	}
	return nil
}

// Principal loads a user with role assignments and the union of permission
// keys granted by those roles. Callers resolve it once per request and pass
// it down explicitly.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	users := s.store.Users(ctx)
	roles := s.store.Roles(ctx)
	perms := s.store.Permissions(ctx)

	user, err := users.Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	assignments, err := roles.Assignments(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	permMap := make(map[string]struct{})
	for _, a := range assignments {
		list, err := perms.PermissionsForRole(ctx, a.RoleID)
		if err != nil {
			return Principal{}, err
		}
		for _, p := range list {
			permMap[p.Key] = struct{}{}
		}
	}
	return Principal{User: user, Assignments: assignments, Permissions: permMap}, nil
}

// HasPermission reports whether the user holds the permission key. A key that
// is absent from the catalog answers false and logs a warning; unknown
// permissions are never implicitly granted.
func (s *Service) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("%w: permission key is required", ErrInvalidInput)
	}
	if _, err := s.store.Permissions(ctx).FindByKey(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Warn("unknown permission key", map[string]any{"permission": key, "user_id": userID})
			return false, nil
		}
		return false, err
	}
	principal, err := s.Principal(ctx, userID)
	if err != nil {
		return false, err
	}
	return principal.HasPermission(key), nil
}

// UserStatus is a side lookup used by authorization gates.
func (s *Service) UserStatus(ctx context.Context, userID string) (string, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

// RequireActive rejects principals whose account is not active.
func (s *Service) RequireActive(ctx context.Context, userID string) error {
	status, err := s.UserStatus(ctx, userID)
	if err != nil {
		return err
	}
	if status != UserStatusActive {
		return ErrUnauthorized
	}
	return nil
}

// Authenticate verifies credentials and returns the user. Mismatched
// credentials and non-active accounts both answer ErrUnauthorized so the
// caller cannot distinguish them.
func (s *Service) Authenticate(ctx context.Context, userID, password string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// CreateUser provisions a new account. Administrative operation.
func (s *Service) CreateUser(ctx context.Context, id, displayName, password, status string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = UserStatusActive
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.now().UTC()
	user := &User{
		ID:           id,
		DisplayName:  displayName,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateDisplayName changes the unique display name of an account.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).UpdateDisplayName(ctx, userID, name)
}

// UpdatePassword verifies the current password before storing a new hash.
func (s *Service) UpdatePassword(ctx context.Context, userID, current, replacement string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrUnauthorized
	}
	hash, err := HashPassword(replacement)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// SetUserStatus transitions an account's status. Administrative operation.
func (s *Service) SetUserStatus(ctx context.Context, userID, status string) error {
	status = strings.TrimSpace(strings.ToLower(status))
	if !validStatus(status) {
		return fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.store.Users(ctx).UpdateStatus(ctx, userID, status)
}

// AssignRole grants the named role to a user. Administrative operation.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(roleName)
	if userID == "" || roleName == "" {
		return fmt.Errorf("%w: user id and role name are required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.Roles(ctx).Assign(ctx, Assignment{
		UserID:    userID,
		RoleID:    role.ID,
		CreatedAt: s.now().UTC(),
	})
}

// RoleNames lists the names of the roles assigned to a user.
func (s *Service) RoleNames(ctx context.Context, userID string) ([]string, error) {
	roles := s.store.Roles(ctx)
	assignments, err := roles.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(assignments))
	for _, a := range assignments {
		role, err := roles.Find(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		names = append(names, role.Name)
	}
	return names, nil
}

// DisplayName returns the display name for a user id, or "" with ErrNotFound
// when the account does not exist.
func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

func validStatus(status string) bool {
	switch status {
	case UserStatusActive, UserStatusInactive, UserStatusTerminated:
		return true
	}
	return false
}
