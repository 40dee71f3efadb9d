package main

// user.go is the in-memory user store, adapted from example/hackernews/user.go:
// Signup/Login are unchanged in spirit (bcrypt-hashed passwords, a unique ID
// per user) but return a chat-domain AuthPayload instead of eggql's, and the
// store is guarded by a mutex since this package serves concurrent WebSocket
// connections rather than the teacher's single-goroutine HTTP handler.

import (
	"errors"
	"math/rand"
	"strconv"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	password string
}

type AuthPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type userStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]User)}
}

// Signup creates a new user and returns a bearer token for it.
func (s *userStore) Signup(email, password, name string) (AuthPayload, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthPayload{}, err
	}

	s.mu.Lock()
	id := s.uniqueIDLocked()
	user := User{ID: id, Name: name, Email: email, password: string(hash)}
	s.users[id] = user
	s.mu.Unlock()

	token, err := issueToken(id)
	if err != nil {
		return AuthPayload{}, err
	}
	return AuthPayload{Token: token, User: user}, nil
}

// Login authenticates by email/password and returns a fresh bearer token.
func (s *userStore) Login(email, password string) (AuthPayload, error) {
	s.mu.Lock()
	var match *User
	for _, u := range s.users {
		u := u
		if u.Email == email {
			match = &u
			break
		}
	}
	s.mu.Unlock()

	if match == nil || bcrypt.CompareHashAndPassword([]byte(match.password), []byte(password)) != nil {
		return AuthPayload{}, errors.New("invalid email or password")
	}
	token, err := issueToken(match.ID)
	if err != nil {
		return AuthPayload{}, err
	}
	return AuthPayload{Token: token, User: *match}, nil
}

// byID returns the user for id, if any.
func (s *userStore) byID(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// uniqueIDLocked returns an unused, "U"-prefixed user ID. Callers must hold s.mu.
func (s *userStore) uniqueIDLocked() string {
	for {
		id := "U" + strconv.Itoa(rand.Int())
		if _, ok := s.users[id]; !ok {
			return id
		}
	}
}
