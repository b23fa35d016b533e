package userrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yanqian/todoauth/internal/domain/auth"
	"github.com/yanqian/todoauth/pkg/util"
)

// MemoryRepository provides an in-memory user store for tests/dev.
type MemoryRepository struct {
	mu            sync.RWMutex
	users         map[string]auth.User
	emailIndex    map[string]string
	externalIndex map[string]string
	now           util.Clock
}

// NewMemoryRepository constructs a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[string]auth.User),
		emailIndex:    make(map[string]string),
		externalIndex: make(map[string]string),
		now:           util.NowUTC,
	}
}

// Create stores the user record.
func (r *MemoryRepository) Create(_ context.Context, in auth.NewUser) (auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in.GoogleID != "" {
		if _, exists := r.externalIndex[in.GoogleID]; exists {
			return auth.User{}, auth.ErrExternalIDExists
		}
	}
	if _, exists := r.emailIndex[in.Email]; exists {
		return auth.User{}, auth.ErrEmailExists
	}
	user := auth.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		GoogleID:     in.GoogleID,
		PictureURL:   in.PictureURL,
		CreatedAt:    r.now(),
		LastLoginAt:  in.LastLoginAt,
	}
	r.users[user.ID] = user
	r.emailIndex[user.Email] = user.ID
	if user.GoogleID != "" {
		r.externalIndex[user.GoogleID] = user.ID
	}
	return user, nil
}

// FindByEmail returns a user by email.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (auth.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.emailIndex[email]; ok {
		return r.users[id], true, nil
	}
	return auth.User{}, false, nil
}

// FindByExternalID returns the user linked to a Google account.
func (r *MemoryRepository) FindByExternalID(_ context.Context, externalID string) (auth.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.externalIndex[externalID]; ok {
		return r.users[id], true, nil
	}
	return auth.User{}, false, nil
}

// FindByID fetches by ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (auth.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	return user, ok, nil
}

// Update applies the non-nil fields of update.
func (r *MemoryRepository) Update(_ context.Context, id string, update auth.UserUpdate) (auth.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.User{}, false, nil
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.PictureURL != nil {
		user.PictureURL = *update.PictureURL
	}
	if update.LastLoginAt != nil {
		user.LastLoginAt = *update.LastLoginAt
	}
	r.users[id] = user
	return user, true, nil
}

// SetPasswordHash replaces the stored hash.
func (r *MemoryRepository) SetPasswordHash(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

// List returns all users ordered by creation time.
func (r *MemoryRepository) List(_ context.Context) ([]auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]auth.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

var _ auth.Repository = (*MemoryRepository)(nil)
