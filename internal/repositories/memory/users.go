package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/SAP-F-2025/assessment-engine/internal/models"
	"github.com/SAP-F-2025/assessment-engine/internal/repositories"
)

// UserStore is a fixed user directory for runs without an identity provider.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserStore(users ...models.User) *UserStore {
	s := &UserStore{users: make(map[string]models.User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *UserStore) Put(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

// GetByIDs skips unknown ids.
func (s *UserStore) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (s *UserStore) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filters.Query))
	var matched []*models.User
	for _, u := range s.users {
		if query != "" &&
			!strings.Contains(strings.ToLower(u.FullName), query) &&
			!strings.Contains(strings.ToLower(u.Email), query) {
			continue
		}
		u := u
		matched = append(matched, &u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return page(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func (s *UserStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *UserStore) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return ok && u.Role == role, nil
}
