package relay

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidIdentity   = errors.New("identity must be a 64-character hex string")
	ErrNotRegistered     = errors.New("you must register first")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrRateLimited       = errors.New("too many messages, slow down")
)

var identityPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// NormalizeIdentity checks the 64-hex format and returns the lowercase form
// used as the identity key everywhere in the relay.
func NormalizeIdentity(s string) (string, error) {
	if !identityPattern.MatchString(s) {
		return "", ErrInvalidIdentity
	}
	return strings.ToLower(s), nil
}

// IsClientError reports whether err is caused by the request rather than by
// the relay itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidIdentity) ||
		errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, ErrUnknownConnection) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrRateLimited)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
