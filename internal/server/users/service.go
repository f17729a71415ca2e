// Package users implements the credential store: registration, credential
// verification, and the password-material invariants on top of a kvstore
// collection.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

var (
	// ErrIncorrectCredentials covers both an unknown username and a wrong
	// password, so login responses cannot be used to enumerate accounts.
	ErrIncorrectCredentials = errors.New("incorrect username or password")

	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrIncorrectOldPassword = errors.New("incorrect old password")
)

// dummyHash is a valid bcrypt digest of a random string nobody knows.
// Lookups for absent users compare against it so the miss costs the same as
// a password mismatch.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

const collectionName = "users"

// Service is the credential store. All password plaintext entering the
// service is hashed before the record reaches storage.
type Service struct {
	users *kvstore.Collection[models.User]
}

func NewService(factory kvstore.Factory) *Service {
	return &Service{
		users: kvstore.NewCollection[models.User](factory.CreateStorage(collectionName)),
	}
}

func hashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(b), nil
}

func checkPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// GetByCredentials returns the user when the username exists and the
// password matches the stored hash. Any other outcome, including a disabled
// account or an account with no password material, is ErrIncorrectCredentials.
func (s *Service) GetByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			checkPassword(dummyHash, password)
			return nil, ErrIncorrectCredentials
		}
		return nil, err
	}
	if user.Disabled || user.HashedPassword == "" || !checkPassword(user.HashedPassword, password) {
		return nil, ErrIncorrectCredentials
	}
	return user, nil
}

// Register persists a new user. A plaintext password, if present, is hashed
// and discarded before the record is written.
func (s *Service) Register(ctx context.Context, user *models.User) error {
	u := *user
	if u.Password != "" {
		hash, err := hashPassword(u.Password)
		if err != nil {
			return err
		}
		u.HashedPassword = hash
		u.Password = ""
	}
	if err := s.users.Create(ctx, u.Username, &u); err != nil {
		if errors.Is(err, kvstore.ErrKeyExists) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// Update overwrites the stored record. A new plaintext password replaces the
// hash; without one the previously stored hash is preserved, so a partial
// update can never silently disable login.
func (s *Service) Update(ctx context.Context, username string, user *models.User) error {
	old, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	u := *user
	u.Username = username
	if u.Password != "" {
		hash, err := hashPassword(u.Password)
		if err != nil {
			return err
		}
		u.HashedPassword = hash
		u.Password = ""
	} else {
		u.HashedPassword = old.HashedPassword
	}
	return s.users.Put(ctx, username, &u)
}

// ChangePassword re-verifies the old password and stores a hash of the new
// one. A mismatch is ErrIncorrectOldPassword, deliberately distinct from the
// login error.
func (s *Service) ChangePassword(ctx context.Context, username, oldPass, newPass string) error {
	user, err := s.GetByCredentials(ctx, username, oldPass)
	if err != nil {
		if errors.Is(err, ErrIncorrectCredentials) {
			return ErrIncorrectOldPassword
		}
		return err
	}
	user.Password = newPass
	user.HashedPassword = ""
	return s.Update(ctx, username, user)
}

// SetResetCode stores a pending reset code with its expiry, replacing any
// previous one.
func (s *Service) SetResetCode(ctx context.Context, username, code string, exp time.Time) error {
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	user.ResetCode = code
	user.ResetCodeExp = &exp
	return s.Update(ctx, username, user)
}

func (s *Service) Get(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail scans the collection for a matching email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	all, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

// List returns the public projection of every user.
func (s *Service) List(ctx context.Context) ([]models.Header, error) {
	all, err := s.users.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Header, 0, len(all))
	for _, u := range all {
		out = append(out, u.Header())
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, username string) error {
	if _, err := s.Get(ctx, username); err != nil {
		return err
	}
	return s.users.Delete(ctx, username)
}

// IsEmpty reports whether any user exists at all; the app seeds the default
// admin when it does not.
func (s *Service) IsEmpty(ctx context.Context) (bool, error) {
	return s.users.IsEmpty(ctx)
}
