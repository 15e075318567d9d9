// Package auth issues and verifies session tokens. Access and refresh
// tokens are both HS256 JWTs; the kind claim keeps one from being used in
// place of the other. Refresh tokens are additionally recorded by hash in
// the token store so that each one can be exchanged exactly once.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/utils"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed claim set of every session token. Role is a
// snapshot taken at issue time.
type Claims struct {
	Role model.Role `json:"role"`
	Kind Kind       `json:"kind"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject %q", apperr.ErrTokenInvalid, c.Subject)
	}
	return id, nil
}

// TokenPair is returned by Issue and Refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	// ConsumeRefresh atomically revokes an active token and returns its
	// owner; apperr.ErrNotFound when the token is unknown, revoked or
	// expired.
	ConsumeRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// UserReader loads the current state of a user.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Options configures a Service.
type Options struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the token service.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	tokens     TokenStore
	users      UserReader
}

// NewService returns a Service using the given stores.
func NewService(o Options, tokens TokenStore, users UserReader) *Service {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AccessTTL <= 0 {
		o.AccessTTL = 15 * time.Minute
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		secret:     o.Secret,
		issuer:     o.Issuer,
		accessTTL:  o.AccessTTL,
		refreshTTL: o.RefreshTTL,
		now:        o.Now,
		tokens:     tokens,
		users:      users,
	}
}

func (s *Service) sign(u model.User, kind Kind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl).Truncate(time.Second)
	claims := Claims{
		Role: u.Role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Issue mints an access and a refresh token for u and records the refresh
// token hash.
func (s *Service) Issue(ctx context.Context, u model.User) (TokenPair, error) {
	now := s.now().UTC()
	access, accessExp, err := s.sign(u, KindAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.sign(u, KindRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh), refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks the signature, expiry and kind of raw. It does not touch
// the store.
func (s *Service) Verify(raw string, expected Kind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: issuer %q", apperr.ErrTokenInvalid, claims.Issuer)
	}
	if claims.Role.Rank() < model.RoleUser.Rank() {
		return nil, fmt.Errorf("%w: role %q", apperr.ErrTokenInvalid, claims.Role)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	if claims.Kind != expected {
		return nil, apperr.ErrTokenKindMismatch
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// is consumed; presenting it again fails with apperr.ErrTokenInvalid. The
// new pair carries the role currently stored for the user.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, model.User, error) {
	claims, err := s.Verify(raw, KindRefresh)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	subject, _ := claims.UserID()
	owner, err := s.tokens.ConsumeRefresh(ctx, utils.HashToken(raw), s.now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return TokenPair{}, model.User{}, fmt.Errorf("%w: refresh token already used or revoked", apperr.ErrTokenInvalid)
		}
		return TokenPair{}, model.User{}, err
	}
	if owner != subject {
		return TokenPair{}, model.User{}, fmt.Errorf("%w: subject mismatch", apperr.ErrTokenInvalid)
	}
	u, err := s.users.GetByID(ctx, owner)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return TokenPair{}, model.User{}, fmt.Errorf("%w: user %d gone", apperr.ErrTokenInvalid, owner)
		}
		return TokenPair{}, model.User{}, err
	}
	if !u.IsActive {
		return TokenPair{}, model.User{}, fmt.Errorf("%w: user %d disabled", apperr.ErrTokenInvalid, owner)
	}
	pair, err := s.Issue(ctx, u)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	return pair, u, nil
}

// Revoke ends the session of a single refresh token.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if _, err := s.Verify(raw, KindRefresh); err != nil {
		return err
	}
	if err := s.tokens.RevokeByHash(ctx, utils.HashToken(raw)); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: refresh token already revoked", apperr.ErrTokenInvalid)
		}
		return err
	}
	return nil
}

// RevokeAll ends every session of a user.
func (s *Service) RevokeAll(ctx context.Context, userID uint64) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}
