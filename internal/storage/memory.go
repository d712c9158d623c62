package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
)

// memStore keeps everything in process memory. Used by tests and by
// deployments that do not care about surviving a restart.
type memStore struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]User
	emails map[uuid.UUID]schedule.Email
	audit  []AuditEntry
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memStore{
		users:  make(map[uuid.UUID]User),
		emails: make(map[uuid.UUID]schedule.Email),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, have := range m.users {
		if have.Email == email {
			return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
		}
	}
	u.Email = email
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (m *memStore) EnsureUser(ctx context.Context, email string) (User, error) {
	if u, err := m.UserByEmail(ctx, email); err == nil {
		return u, nil
	}
	u := User{
		ID:        uuid.New(),
		Email:     strings.ToLower(email),
		Username:  usernameFromEmail(email),
		CreatedAt: time.Now(),
	}
	if err := m.CreateUser(ctx, u); err != nil {
		return m.UserByEmail(ctx, email)
	}
	return u, nil
}

func (m *memStore) CreateEmail(_ context.Context, e schedule.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[e.ID]; ok {
		return fmt.Errorf("email %s: %w", e.ID, ErrConflict)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.emails[e.ID] = e
	return nil
}

func (m *memStore) Email(_ context.Context, id uuid.UUID) (schedule.Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.emails[id]
	if !ok {
		return schedule.Email{}, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *memStore) ActiveByOwner(_ context.Context, owner uuid.UUID) ([]schedule.Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Email
	for _, e := range m.emails {
		if e.OwnerID == owner && e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *memStore) DueEmails(_ context.Context, now time.Time) ([]schedule.Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Email
	for _, e := range m.emails {
		if e.Active && e.NextSendAt != nil && !e.NextSendAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextSendAt.Before(*out[j].NextSendAt) })
	return out, nil
}

func (m *memStore) Deactivate(_ context.Context, id, owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok || !e.Active {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	if e.OwnerID != owner {
		return fmt.Errorf("email %s: %w", id, ErrOwnerMismatch)
	}
	e.Active = false
	m.emails[id] = e
	return nil
}

func (m *memStore) MarkFired(_ context.Context, id uuid.UUID, up FireUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	sent := up.LastSentAt
	e.LastSentAt = &sent
	if up.NextSendAt != nil {
		next := *up.NextSendAt
		e.NextSendAt = &next
	}
	e.Active = up.Active
	m.emails[id] = e
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}
