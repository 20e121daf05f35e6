// Package session holds the signed-in identity of the booth operator.
package session

import (
	"sync"
)

// User is an already-authenticated identity.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Store is the session handle. A nil *User means signed out.
type Store struct {
	mu        sync.RWMutex
	current   *User
	nextID    int
	listeners map[int]func(*User)
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]func(*User))}
}

// Current returns a copy of the signed-in user, or nil.
func (s *Store) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// UserID returns the signed-in uid, or "" when signed out.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.UID
}

func (s *Store) SignIn(u User) {
	s.set(&u)
}

func (s *Store) SignOut() {
	s.set(nil)
}

// Subscribe registers fn for every change. The returned function removes
// it and may be called more than once.
func (s *Store) Subscribe(fn func(*User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) set(u *User) {
	s.mu.Lock()
	s.current = u
	fns := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(clone(u))
	}
}

func clone(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
