package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"issuedesk.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service issues and rotates session credentials and authenticates
// requests against the live credential store.
type Service struct {
	store    Store
	resolver *Resolver

	secret     string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	tokens *TokenService
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service signing tokens with the given secret.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		resolver:   NewResolver(store),
		secret:     secret,
		issuer:     "issuedesk",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	tokens, err := NewTokenService(secret, svc.issuer, svc.accessTTL)
	if err != nil {
		return nil, err
	}
	tokens.now = svc.now
	svc.tokens = tokens
	return svc, nil
}

// Tokens exposes the underlying token service for stateless verification.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login authenticates credentials and issues a fresh session. All
// credential failures collapse to ErrInvalidCredentials; only an inactive
// account is reported distinctly.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrUserInactive
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, user)
}

// Rotate exchanges a refresh token for a new session. The presented token
// is revoked atomically before anything else; a reused, forged or
// concurrently-rotated token fails with ErrRefreshTokenNotFound. Claims are
// re-resolved live, never taken from the old token's snapshot. Other
// outstanding refresh tokens of the user stay valid (multi-session).
func (s *Service) Rotate(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, ErrRefreshTokenNotFound
	}

	record, err := s.store.RefreshTokens(ctx).Consume(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	if s.now().After(record.ExpiresAt) {
		return Session{}, ErrRefreshTokenExpired
	}

	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, ErrUserInactive
	}
	return s.issueSession(ctx, user)
}

// RevokeRefreshToken revokes a presented refresh token (logout).
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.store.RefreshTokens(ctx).Revoke(ctx, refreshToken)
}

// Authenticate verifies an access token and rebuilds the authorization
// context live from the store. The token's embedded snapshot is ignored
// for enforcement.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	resolution, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return buildIdentity(user, resolution), nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every outstanding refresh token of the user so stale sessions
// cannot outlive the old credential.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	next = strings.TrimSpace(next)
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidCredentials)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return err
	}
	return s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, user.ID)
}

// issueSession mints the access token from a live resolution and persists
// a new refresh token record.
func (s *Service) issueSession(ctx context.Context, user *User) (Session, error) {
	resolution, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	snapshot := buildSnapshot(user, resolution)

	accessToken, accessExp, err := s.tokens.Mint(snapshot)
	if err != nil {
		return Session{}, err
	}
	refreshValue, err := GenerateRefreshToken()
	if err != nil {
		return Session{}, err
	}
	record := &RefreshToken{
		ID:        ids.New(),
		Token:     refreshValue,
		UserID:    user.ID,
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshValue,
		RefreshExpiresAt: record.ExpiresAt,
		User:             snapshot,
	}, nil
}

func buildSnapshot(user *User, resolution Resolution) UserSnapshot {
	snapshot := UserSnapshot{
		UserID:        user.ID,
		Email:         user.Email,
		FullName:      user.FullName,
		Institute:     user.Institute,
		UserPosition:  user.UserPosition,
		HierarchyNode: user.HierarchyNode,
		InternalNode:  user.InternalNode,
		Permissions:   resolution.Permissions,
	}
	if user.UserType != nil {
		snapshot.UserType = user.UserType.Name
	}
	seen := make(map[string]struct{})
	for _, a := range resolution.Assignments {
		if !a.IsActive || a.RoleID == "" {
			continue
		}
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}
		snapshot.Roles = append(snapshot.Roles, Role{ID: a.RoleID, Name: a.RoleName})
	}
	if snapshot.Permissions == nil {
		snapshot.Permissions = []Permission{}
	}
	if snapshot.Roles == nil {
		snapshot.Roles = []Role{}
	}
	return snapshot
}

func buildIdentity(user *User, resolution Resolution) *Identity {
	active := resolution.Assignments[:0:0]
	for _, a := range resolution.Assignments {
		if a.IsActive {
			active = append(active, a)
		}
	}
	id := &Identity{
		UserID:            user.ID,
		Email:             user.Email,
		FullName:          user.FullName,
		InstituteID:       user.InstituteID,
		UserTypeID:        user.UserTypeID,
		Roles:             resolution.RoleNames,
		Permissions:       resolution.PermissionKeys(),
		ProjectRoles:      active,
		IsFirstLogin:      user.IsFirstLogin,
		PasswordChangedAt: user.PasswordChangedAt,
	}
	if user.UserType != nil {
		id.UserType = user.UserType.Name
	}
	if id.Roles == nil {
		id.Roles = []string{}
	}
	if id.Permissions == nil {
		id.Permissions = []string{}
	}
	if id.ProjectRoles == nil {
		id.ProjectRoles = []ProjectAssignment{}
	}
	id.RequiresPasswordChange = user.IsFirstLogin || user.PasswordChangedAt == nil
	id.Index()
	return id
}
