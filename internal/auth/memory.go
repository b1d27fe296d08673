package auth

import (
	"context"
	"sync"
	"time"

	"reserv.org/internal/ids"
)

// MemoryStore implements Store in process memory. Used by tests and as the
// cmd/api fallback when no database is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	byName      map[string]string // display name -> user id
	roles       map[string]*Role
	rolesByName map[string]string
	perms       map[string]*Permission // key -> permission
	rolePerms   map[string][]string    // role id -> permission keys
	assignments map[string][]Assignment
}

// NewMemoryStore creates an empty in-memory auth store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		byName:      make(map[string]string),
		roles:       make(map[string]*Role),
		rolesByName: make(map[string]string),
		perms:       make(map[string]*Permission),
		rolePerms:   make(map[string][]string),
		assignments: make(map[string][]Assignment),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Users(ctx context.Context) UserStore             { return memUsers{m} }
func (m *MemoryStore) Roles(ctx context.Context) RoleStore             { return memRoles{m} }
func (m *MemoryStore) Permissions(ctx context.Context) PermissionStore { return memPerms{m} }

type memUsers struct{ s *MemoryStore }

func (u memUsers) Create(ctx context.Context, user *User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := u.s.byName[user.DisplayName]; ok {
		return ErrAlreadyExists
	}
	cp := *user
	u.s.users[user.ID] = &cp
	u.s.byName[user.DisplayName] = user.ID
	return nil
}

func (u memUsers) Find(ctx context.Context, id string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u memUsers) FindByDisplayName(ctx context.Context, name string) (*User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	id, ok := u.s.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u.s.users[id]
	return &cp, nil
}

func (u memUsers) UpdateDisplayName(ctx context.Context, userID, name string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := u.s.byName[name]; taken && owner != userID {
		return ErrAlreadyExists
	}
	delete(u.s.byName, user.DisplayName)
	user.DisplayName = name
	user.UpdatedAt = time.Now().UTC()
	u.s.byName[name] = userID
	return nil
}

func (u memUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (u memUsers) UpdateStatus(ctx context.Context, userID, status string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Status = status
	user.UpdatedAt = time.Now().UTC()
	return nil
}

type memRoles struct{ s *MemoryStore }

func (r memRoles) Create(ctx context.Context, role *Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	if _, ok := r.s.rolesByName[role.Name]; ok {
		return ErrAlreadyExists
	}
	cp := *role
	r.s.roles[role.ID] = &cp
	r.s.rolesByName[role.Name] = role.ID
	return nil
}

func (r memRoles) Find(ctx context.Context, id string) (*Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r memRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.rolesByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.s.roles[id]
	return &cp, nil
}

func (r memRoles) List(ctx context.Context) ([]*Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		cp := *role
		out = append(out, &cp)
	}
	return out, nil
}

func (r memRoles) Assign(ctx context.Context, assignment Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[assignment.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.s.roles[assignment.RoleID]; !ok {
		return ErrNotFound
	}
	for _, existing := range r.s.assignments[assignment.UserID] {
		if existing.RoleID == assignment.RoleID {
			return nil
		}
	}
	r.s.assignments[assignment.UserID] = append(r.s.assignments[assignment.UserID], assignment)
	return nil
}

func (r memRoles) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]Assignment, len(r.s.assignments[userID]))
	copy(out, r.s.assignments[userID])
	return out, nil
}

type memPerms struct{ s *MemoryStore }

func (p memPerms) Ensure(ctx context.Context, perms []Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, perm := range perms {
		if _, ok := p.s.perms[perm.Key]; ok {
			continue
		}
		cp := perm
		if cp.ID == "" {
			cp.ID = ids.New()
		}
		p.s.perms[cp.Key] = &cp
	}
	return nil
}

func (p memPerms) List(ctx context.Context) ([]Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make([]Permission, 0, len(p.s.perms))
	for _, perm := range p.s.perms {
		out = append(out, *perm)
	}
	return out, nil
}

func (p memPerms) FindByKey(ctx context.Context, key string) (*Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	perm, ok := p.s.perms[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *perm
	return &cp, nil
}

func (p memPerms) SetForRole(ctx context.Context, roleID string, keys []string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.roles[roleID]; !ok {
		return ErrNotFound
	}
	for _, key := range keys {
		if _, ok := p.s.perms[key]; !ok {
			return ErrNotFound
		}
	}
	p.s.rolePerms[roleID] = append([]string(nil), keys...)
	return nil
}

func (p memPerms) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	var out []Permission
	for _, key := range p.s.rolePerms[roleID] {
		if perm, ok := p.s.perms[key]; ok {
			out = append(out, *perm)
		}
	}
	return out, nil
}
