package user

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkrupp/streamhub/internal/domain"
)

// MemoryUserRepository keeps users in process memory. It is meant for tests
// and local development; nothing survives a restart.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

var _ Repository = (*MemoryUserRepository)(nil)

// NewMemoryUserRepository returns an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u

	return &c
}

// FindByEmail implements Repository.FindByEmail.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false, nil
	}

	return cloneUser(r.byID[id]), true, nil
}

// FindByID implements Repository.FindByID.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*domain.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, false, nil
	}

	return cloneUser(u), true, nil
}

// Create implements Repository.Create.
func (r *MemoryUserRepository) Create(_ context.Context, draft domain.UserDraft) (*domain.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	user := userFromDraft(id.String(), draft, r.now().UTC().Truncate(time.Millisecond))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return nil, domain.ErrDuplicateEmail
	}

	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID

	return cloneUser(user), nil
}

// Save implements Repository.Save.
func (r *MemoryUserRepository) Save(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	saved := cloneUser(user)
	saved.Email = normalizeEmail(saved.Email)
	saved.CreatedAt = current.CreatedAt
	saved.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)

	if saved.Email != current.Email {
		if _, taken := r.byEmail[saved.Email]; taken {
			return nil, domain.ErrDuplicateEmail
		}

		delete(r.byEmail, current.Email)
		r.byEmail[saved.Email] = saved.ID
	}

	r.byID[saved.ID] = saved

	return cloneUser(saved), nil
}

// Delete implements Repository.Delete.
func (r *MemoryUserRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return false, nil
	}

	delete(r.byEmail, u.Email)
	delete(r.byID, id)

	return true, nil
}

// List implements Repository.List.
func (r *MemoryUserRepository) List(_ context.Context, query domain.ListQuery) ([]*domain.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]*domain.User, 0, len(r.byID))

	for _, u := range r.byID {
		if search == "" ||
			strings.Contains(strings.ToLower(u.Name), search) ||
			strings.Contains(u.Email, search) {
			matched = append(matched, u)
		}
	}

	slices.SortFunc(matched, func(a, b *domain.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(b.ID, a.ID)
	})

	total := len(matched)
	start := min(max(query.Offset, 0), total)
	end := min(start+max(query.Limit, 0), total)

	page := make([]*domain.User, 0, end-start)
	for _, u := range matched[start:end] {
		page = append(page, cloneUser(u))
	}

	return page, total, nil
}

// CountAdmins implements Repository.CountAdmins.
func (r *MemoryUserRepository) CountAdmins(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0

	for _, u := range r.byID {
		if u.IsAdmin {
			n++
		}
	}

	return n, nil
}

// Close implements Repository.Close.
func (r *MemoryUserRepository) Close() error {
	return nil
}
