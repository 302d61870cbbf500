// Package token decodes the claims carried by a compact session token.
//
// Decoding is a convenience for the UI (who is logged in, which avatar to
// show). It never verifies the signature and must not be used to make trust
// decisions; the backend that issued the token does that on every call.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nfrund/weatherdash/internal/domain"
)

// ErrMalformed is returned for any token whose payload cannot be decoded.
var ErrMalformed = errors.New("malformed token")

// The browser-side atob accepted padded and unpadded payloads alike.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims returns the parsed claims object from the payload segment of raw.
func Claims(raw string) (map[string]any, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %v", ErrMalformed, err)
	}
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformed)
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", ErrMalformed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	return claims, nil
}

// Decode returns the user identity carried by raw.
func Decode(raw string) (*domain.User, error) {
	claims, err := Claims(raw)
	if err != nil {
		return nil, err
	}
	return domain.UserFromClaims(claims), nil
}
