package presexch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnsupportedCredential is returned for credentials that cannot be decoded.
var ErrUnsupportedCredential = errors.New("unsupported credential encoding")

// Document is a decoded credential that field paths are evaluated against.
type Document map[string]interface{}

// DecodeCredential turns a stored credential into a Document. JWT and
// SD-JWT credentials yield their (unverified) payload; JSON-LD credentials
// are decoded as-is.
func DecodeCredential(raw string) (Document, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCredential, err)
		}
		return doc, nil
	}

	// the issuer-signed part of an SD-JWT precedes the first disclosure
	token, _, _ := strings.Cut(raw, "~")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCredential, err)
	}
	return Document(claims), nil
}
