package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenBytes = 64

// Claims is the access-token payload: registered claims plus the identity
// and authorization snapshot taken at mint time. The snapshot is a
// performance hint for the client; the request gate never trusts it.
type Claims struct {
	Email         string         `json:"email"`
	FullName      string         `json:"full_name"`
	UserType      string         `json:"user_type,omitempty"`
	Institute     *Institute     `json:"institute,omitempty"`
	UserPosition  *UserPosition  `json:"user_position,omitempty"`
	HierarchyNode *HierarchyNode `json:"hierarchy_node,omitempty"`
	InternalNode  *InternalNode  `json:"internal_node,omitempty"`
	Permissions   []Permission   `json:"permissions"`
	Roles         []Role         `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService mints and validates access tokens and generates opaque
// refresh token values. Access tokens are signed HS256 JWTs; verification
// is stateless.
type TokenService struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService constructs a TokenService. The secret must be non-empty.
func NewTokenService(secret, issuer string, accessTTL time.Duration) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("auth: access ttl must be greater than zero")
	}
	return &TokenService{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// Mint signs an access token carrying the given snapshot.
func (t *TokenService) Mint(snapshot UserSnapshot) (string, time.Time, error) {
	if strings.TrimSpace(snapshot.UserID) == "" {
		return "", time.Time{}, errors.New("auth: snapshot user id is required")
	}
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := Claims{
		Email:         snapshot.Email,
		FullName:      snapshot.FullName,
		UserType:      snapshot.UserType,
		Institute:     snapshot.Institute,
		UserPosition:  snapshot.UserPosition,
		HierarchyNode: snapshot.HierarchyNode,
		InternalNode:  snapshot.InternalNode,
		Permissions:   snapshot.Permissions,
		Roles:         snapshot.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   snapshot.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of an access token. Expiry is
// reported distinctly so callers can branch on retry decisions.
func (t *TokenService) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateRefreshToken returns a hex-encoded opaque token drawn from 512
// bits of CSPRNG entropy.
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
