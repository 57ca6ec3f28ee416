package verifier

import "errors"

var (
	// ErrAuthNotConfigured is returned when no issuer is trusted
	ErrAuthNotConfigured = errors.New("no trusted issuers configured")

	// ErrInvalidToken is returned when the token cannot be decoded
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownIssuer is returned when the iss claim is missing or not trusted
	ErrUnknownIssuer = errors.New("unknown issuer")

	// ErrTokenExpired is returned when the token is past exp plus the clock skew
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidSignature is returned when no trusted key verifies the signature
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidClaims is returned when a registered claim check fails
	ErrInvalidClaims = errors.New("invalid claims")

	// ErrWrongTokenType is returned when the declared token kind is not accepted
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrInsufficientScope is returned when a required scope is missing
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrJWKSFetchFailed is returned when the issuer key set cannot be fetched
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrKeyNotFound is returned when the key set holds no key for the token
	ErrKeyNotFound = errors.New("signing key not found")
)
