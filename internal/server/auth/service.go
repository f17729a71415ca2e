// Package auth implements the token service: JWT issuance, validation,
// single-use refresh with a persisted blacklist, and the password-reset
// flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")

	// ErrInvalidRefreshToken is what a replayed (blacklisted) refresh token
	// surfaces as; the blacklist itself is never named to the caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	ErrResetCode        = errors.New("reset code error")
	ErrResetCodeExpired = errors.New("reset code expired")

	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

const (
	blacklistCollection = "token_black_list"
	resetCodeBytes      = 16
)

// Service issues and validates token pairs and runs the password-reset
// flow. Blacklist entries are persisted through the compact storage variant;
// the collection stays small because inserts evict entries whose token
// already expired.
type Service struct {
	users       *users.Service
	blacklist   *kvstore.Collection[models.BlacklistEntry]
	sender      mail.Sender
	resetMail   mail.Template
	logger      logging.Logger
	secretKey   []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	resetWindow time.Duration
}

func NewService(userService *users.Service, factory kvstore.Factory, sender mail.Sender, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		users:     userService,
		blacklist: kvstore.NewCollection[models.BlacklistEntry](factory.CreateCompactStorage(blacklistCollection)),
		sender:    sender,
		resetMail: mail.Template{
			Sender:  cfg.ResetEmailSender,
			Subject: cfg.ResetEmailSubject,
			Body:    cfg.ResetEmailBody,
		},
		logger:      logger,
		secretKey:   []byte(cfg.SecretKey),
		accessTTL:   cfg.AccessTokenValidityDuration,
		refreshTTL:  cfg.RefreshTokenValidityDuration,
		resetWindow: cfg.ResetCodeValidityDuration,
	}
}

// SeedDefaultUser registers the configured default admin when the user
// store is completely empty, so a fresh deployment is reachable.
func (s *Service) SeedDefaultUser(ctx context.Context, user *models.User) error {
	empty, err := s.users.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	s.logger.Info(ctx, "user store empty, seeding default user", "username", user.Username)
	return s.users.Register(ctx, user)
}

// Authorize verifies the credentials and returns a fresh token pair.
func (s *Service) Authorize(ctx context.Context, username, password string) (*models.TokenPair, error) {
	user, err := s.users.GetByCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.createTokens(claimsForUser(user))
}

func claimsForUser(user *models.User) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.Username},
		Email:            user.Email,
		Name:             user.Name,
		Roles:            user.Roles,
	}
}

func (s *Service) createTokens(claims Claims) (*models.TokenPair, error) {
	// A fresh jti per pair keeps every minted token distinct, so a rotated
	// refresh token never collides with the blacklisted one it replaces.
	claims.ID = uuid.NewString()
	access, err := generateToken(claims, s.secretKey, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := generateToken(claims, s.secretKey, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}, nil
}

// Decode verifies the signature and expiry of a token and returns its
// claims. Expired and malformed tokens fail with distinct errors.
func (s *Service) Decode(token string) (*Claims, error) {
	return parseToken(token, s.secretKey)
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// token is blacklisted in the same step, which makes refresh tokens
// single-use: a replay hits the existing blacklist entry and fails with
// ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.addToBlacklist(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, kvstore.ErrKeyExists) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return s.createTokens(*claims)
}

// Logout revokes a refresh token. An already-expired token needs no entry
// since it can never be replayed successfully; a token already on the
// blacklist surfaces as ErrInvalidRefreshToken and callers may treat that
// as an idempotent success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.Decode(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	if err := s.addToBlacklist(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, kvstore.ErrKeyExists) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	return nil
}

func (s *Service) addToBlacklist(ctx context.Context, token string, exp time.Time) error {
	// Lazy eviction keeps the collection bounded without a dedicated
	// background job.
	if err := s.SweepBlacklist(ctx); err != nil {
		s.logger.Warn(ctx, "blacklist sweep failed", "error", err)
	}
	return s.blacklist.Create(ctx, token, &models.BlacklistEntry{Token: token, Exp: exp})
}

// SweepBlacklist removes entries whose token expiry has passed. Safe to run
// concurrently with inserts.
func (s *Service) SweepBlacklist(ctx context.Context) error {
	all, err := s.blacklist.All(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for key, entry := range all {
		if now.After(entry.Exp) {
			if err := s.blacklist.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChangePassword delegates to the credential store.
func (s *Service) ChangePassword(ctx context.Context, username, oldPass, newPass string) error {
	return s.users.ChangePassword(ctx, username, oldPass, newPass)
}

// RequestPasswordReset issues a fresh single-use reset code for the account
// behind email, stores it with its expiry, and dispatches it through the
// notification sink. A previously issued code is implicitly invalidated.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := common.MakeRandURLSafeString(resetCodeBytes)
	if err != nil {
		return fmt.Errorf("generating reset code: %w", err)
	}
	exp := time.Now().Add(s.resetWindow).UTC()

	if err := s.users.SetResetCode(ctx, user.Username, code, exp); err != nil {
		return err
	}

	subject, body := s.resetMail.Render(map[string]string{
		"reset_code":                code,
		"reset_code_expire_minutes": strconv.Itoa(int(s.resetWindow.Minutes())),
	})
	if err := s.sender.Send(ctx, s.resetMail.Sender, email, subject, body); err != nil {
		return fmt.Errorf("sending reset mail: %w", err)
	}

	s.logger.Info(ctx, "password reset requested", "username", user.Username)
	return nil
}

// ResetPassword consumes the pending reset code and replaces the password.
// The code is cleared on success, so it cannot be used twice.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPass string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if code == "" || user.ResetCode == "" || user.ResetCode != code {
		return ErrResetCode
	}
	if user.ResetCodeExp == nil || !time.Now().Before(*user.ResetCodeExp) {
		return ErrResetCodeExpired
	}

	user.Password = newPass
	user.HashedPassword = ""
	user.ResetCode = ""
	user.ResetCodeExp = nil
	return s.users.Update(ctx, user.Username, user)
}
