package auth

import "errors"

var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrRefreshTokenNotFound covers unknown, forged and already-rotated
	// refresh tokens, including the loser of a concurrent rotation.
	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")
	ErrRefreshTokenExpired  = errors.New("auth: refresh token expired")

	ErrUserNotFound = errors.New("auth: user not found")
	ErrUserInactive = errors.New("auth: user inactive")

	ErrPermissionNotFound = errors.New("auth: permission not found")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
