// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package auth owns the single-user credential store and the API keys.
// Both live as JSON files in the data directory; passwords are hashed
// with argon2id, API keys stored as sha256 digests.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/pkg/jsonfile"
)

var (
	ErrNotSetup           = errors.New("no user configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidAPIKey      = errors.New("invalid api key")
)

const (
	usersFile   = "users.json"
	apiKeysFile = "apikeys.json"

	minPasswordLength = 8
	rawKeyBytes       = 32
)

// User is the single local account.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// APIKey is one issued key. The raw key is shown once at creation and
// only its digest is kept.
type APIKey struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	KeyHash    string `json:"keyHash"`
	CreatedAt  int64  `json:"createdAt"`
	LastUsedAt int64  `json:"lastUsedAt,omitempty"`
}

// Service is the credential store.
type Service struct {
	usersPath string
	keysPath  string

	mu   sync.RWMutex
	user *User
	keys []APIKey

	now func() time.Time
}

// NewService loads users.json and apikeys.json from the data directory.
func NewService(dataDir string) (*Service, error) {
	s := &Service{
		usersPath: filepath.Join(dataDir, usersFile),
		keysPath:  filepath.Join(dataDir, apiKeysFile),
		now:       time.Now,
	}

	var user User
	found, err := jsonfile.Load(s.usersPath, &user)
	if err != nil {
		return nil, errors.Wrap(err, "load user store")
	}
	if found {
		s.user = &user
	}

	if _, err := jsonfile.Load(s.keysPath, &s.keys); err != nil {
		return nil, errors.Wrap(err, "load api keys")
	}
	return s, nil
}

// IsSetupComplete reports whether a user account exists.
func (s *Service) IsSetupComplete(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil, nil
}

// SetupUser creates the account. Only one user exists; a second setup
// attempt fails.
func (s *Service) SetupUser(ctx context.Context, username, password string) (*User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, errors.New("username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	now := s.now().Unix()
	user := &User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := jsonfile.Save(s.usersPath, user); err != nil {
		return nil, errors.Wrap(err, "persist user")
	}
	s.user = user

	log.Info().Str("username", username).Msg("user account created")
	return user, nil
}

// Login verifies the credentials.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()

	if user == nil {
		return nil, ErrNotSetup
	}
	if user.Username != username {
		return nil, ErrInvalidCredentials
	}

	valid, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, errors.Wrap(err, "verify password")
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword swaps the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return ErrNotSetup
	}

	valid, err := VerifyPassword(oldPassword, s.user.PasswordHash)
	if err != nil {
		return errors.Wrap(err, "verify password")
	}
	if !valid {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	updated := *s.user
	updated.PasswordHash = hash
	updated.UpdatedAt = s.now().Unix()
	if err := jsonfile.Save(s.usersPath, &updated); err != nil {
		return errors.Wrap(err, "persist user")
	}
	s.user = &updated
	return nil
}

// SetPassword overwrites the password without the old one, for the CLI
// recovery path. Creates the user when none exists.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	now := s.now().Unix()
	user := &User{Username: username, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if s.user != nil {
		user.Username = s.user.Username
		user.CreatedAt = s.user.CreatedAt
	}
	if err := jsonfile.Save(s.usersPath, user); err != nil {
		return errors.Wrap(err, "persist user")
	}
	s.user = user
	return nil
}

// GetUser returns the account, nil when setup is pending.
func (s *Service) GetUser(ctx context.Context) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// CreateAPIKey issues a new key and returns its raw value exactly once.
func (s *Service) CreateAPIKey(ctx context.Context, name string) (string, *APIKey, error) {
	if name == "" {
		return "", nil, errors.New("api key name is required")
	}

	raw := make([]byte, rawKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, errors.Wrap(err, "generate api key")
	}
	rawKey := hex.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := 1
	for _, key := range s.keys {
		if key.ID >= id {
			id = key.ID + 1
		}
	}

	key := APIKey{
		ID:        id,
		Name:      name,
		KeyHash:   hashAPIKey(rawKey),
		CreatedAt: s.now().Unix(),
	}
	s.keys = append(s.keys, key)

	if err := jsonfile.Save(s.keysPath, s.keys); err != nil {
		s.keys = s.keys[:len(s.keys)-1]
		return "", nil, errors.Wrap(err, "persist api keys")
	}
	return rawKey, &key, nil
}

// ValidateAPIKey resolves a raw key, updating its last-used timestamp.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKey, error) {
	digest := hashAPIKey(rawKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.keys {
		if s.keys[i].KeyHash != digest {
			continue
		}
		s.keys[i].LastUsedAt = s.now().Unix()
		// last-used is advisory; a failed write is not worth failing auth
		if err := jsonfile.Save(s.keysPath, s.keys); err != nil {
			log.Debug().Err(err).Msg("persist api key usage")
		}
		key := s.keys[i]
		return &key, nil
	}
	return nil, ErrInvalidAPIKey
}

// ListAPIKeys returns the issued keys sorted by id.
func (s *Service) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]APIKey, len(s.keys))
	copy(keys, s.keys)
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

// DeleteAPIKey revokes a key by id.
func (s *Service) DeleteAPIKey(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.keys {
		if s.keys[i].ID != id {
			continue
		}
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
		return errors.Wrap(jsonfile.Save(s.keysPath, s.keys), "persist api keys")
	}
	return ErrInvalidAPIKey
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func hashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
