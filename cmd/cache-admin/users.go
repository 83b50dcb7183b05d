package main

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	errUserNotFound = errors.New("user not found")
	errInvalidUser  = errors.New("invalid user")
)

// Roles of the dashboard hierarchy, highest first.
var roles = []string{"SuperAdmin", "Admin", "Staff", "Partner", "Agent", "User"}

// User is a dashboard account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// userStore is the in-memory user repository backing the admin server.
type userStore struct {
	mu     sync.RWMutex
	users  map[string]User
	nextID int
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]User), nextID: 1}
}

func validRole(role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// List returns users matching role (all when empty), ordered by id.
func (s *userStore) List(role string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

func (s *userStore) Get(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, errUserNotFound
	}
	return u, nil
}

func (s *userStore) Create(u User) (User, error) {
	if u.Name == "" || !validRole(u.Role) {
		return User{}, errInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = strconv.Itoa(s.nextID)
	s.nextID++
	u.UpdatedAt = time.Now()
	s.users[u.ID] = u
	return u, nil
}

// Update replaces the user and returns the names of the fields that changed.
func (s *userStore) Update(id string, u User) (User, []string, error) {
	if u.Name == "" || !validRole(u.Role) {
		return User{}, nil, errInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[id]
	if !ok {
		return User{}, nil, errUserNotFound
	}

	var changed []string
	if old.Name != u.Name {
		changed = append(changed, "name")
	}
	if old.Email != u.Email {
		changed = append(changed, "email")
	}
	if old.Role != u.Role {
		changed = append(changed, "role")
	}
	if old.Active != u.Active {
		changed = append(changed, "active")
	}

	u.ID = id
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return u, changed, nil
}

func (s *userStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return errUserNotFound
	}
	delete(s.users, id)
	return nil
}

// Stats counts users per role.
func (s *userStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(roles))
	for _, u := range s.users {
		counts[u.Role]++
	}
	return counts
}

// seed fills the store with one account per role.
func (s *userStore) seed() {
	for _, role := range roles {
		_, _ = s.Create(User{
			Name:   role + " Account",
			Email:  "demo." + strings.ToLower(role) + "@example.com",
			Role:   role,
			Active: true,
		})
	}
}
