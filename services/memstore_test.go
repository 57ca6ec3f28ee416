package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
)

// memStore is an in-memory store with a unique (issuer, subject) link,
// used to exercise concurrent first logins. Identity links are claimed
// immediately, like a unique index entry, and released on rollback; every
// other write becomes visible on commit. A second insert of a pending link
// waits for the owning transaction to finish, as Postgres does.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	links    map[string]uuid.UUID
	pending  map[string]chan struct{}
	roles    map[uuid.UUID][]string
	onLookup func()
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[uuid.UUID]models.User),
		links:   make(map[string]uuid.UUID),
		pending: make(map[string]chan struct{}),
		roles:   make(map[uuid.UUID][]string),
	}
}

func linkKey(issuer, subject string) string {
	return issuer + "\x00" + subject
}

func (s *memStore) Execute(ctx context.Context, fn func(ctx context.Context, repos repositories.TxRepositories) error) error {
	tx := &memTx{store: s, users: make(map[uuid.UUID]models.User), roles: make(map[uuid.UUID][]string)}
	if err := fn(ctx, repositories.TxRepositories{Users: &memUsers{tx: tx}, Roles: &memRoles{tx: tx}}); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type memTx struct {
	store  *memStore
	users  map[uuid.UUID]models.User
	roles  map[uuid.UUID][]string
	linked []string
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, u := range t.users {
		t.store.users[id] = u
	}
	for id, r := range t.roles {
		t.store.roles[id] = append(t.store.roles[id], r...)
	}
	t.release()
}

// release wakes transactions waiting on links claimed by t. Callers hold the store lock.
func (t *memTx) release() {
	for _, key := range t.linked {
		if ch, ok := t.store.pending[key]; ok {
			close(ch)
			delete(t.store.pending, key)
		}
	}
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, key := range t.linked {
		delete(t.store.links, key)
	}
	t.release()
}

func (t *memTx) user(id uuid.UUID) (models.User, bool) {
	if u, ok := t.users[id]; ok {
		return u, true
	}
	u, ok := t.store.users[id]
	return u, ok
}

type memUsers struct {
	tx *memTx
}

func (r *memUsers) GetByExternalIdentity(ctx context.Context, issuer, subject string) (*models.User, error) {
	if r.tx.store.onLookup != nil {
		r.tx.store.onLookup()
	}
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	id, ok := r.tx.store.links[linkKey(issuer, subject)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	u, ok := r.tx.user(id)
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	u, ok := r.tx.user(id)
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) CreateUser(ctx context.Context, user *models.User) error {
	r.tx.users[user.ID] = *user
	return nil
}

func (r *memUsers) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) error {
	r.tx.store.mu.Lock()
	u, ok := r.tx.user(id)
	r.tx.store.mu.Unlock()
	if !ok {
		return repositories.ErrNotFound
	}
	if update.Email != nil {
		u.Email = update.Email
	}
	if update.Name != nil {
		u.Name = update.Name
	}
	r.tx.users[id] = u
	return nil
}

func (r *memUsers) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.tx.store.mu.Lock()
	u, ok := r.tx.user(id)
	r.tx.store.mu.Unlock()
	if !ok {
		return repositories.ErrNotFound
	}
	u.LastSeenAt = &at
	r.tx.users[id] = u
	return nil
}

func (r *memUsers) LinkExternalIdentity(ctx context.Context, identity *models.ExternalIdentity) (bool, error) {
	key := linkKey(identity.Issuer, identity.Subject)
	r.tx.store.mu.Lock()
	if ch, ok := r.tx.store.pending[key]; ok {
		r.tx.store.mu.Unlock()
		<-ch
		r.tx.store.mu.Lock()
	}
	defer r.tx.store.mu.Unlock()
	if _, exists := r.tx.store.links[key]; exists {
		return false, nil
	}
	r.tx.store.links[key] = identity.UserID
	r.tx.store.pending[key] = make(chan struct{})
	r.tx.linked = append(r.tx.linked, key)
	return true, nil
}

func (r *memUsers) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return r
}

type memRoles struct {
	tx *memTx
}

func (r *memRoles) AssignRoleToUser(ctx context.Context, userID uuid.UUID, role string) error {
	r.tx.roles[userID] = append(r.tx.roles[userID], role)
	return nil
}

func (r *memRoles) ListRoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	roles := append([]string{}, r.tx.store.roles[userID]...)
	roles = append(roles, r.tx.roles[userID]...)
	sort.Strings(roles)
	return roles, nil
}

func (r *memRoles) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	return r
}
