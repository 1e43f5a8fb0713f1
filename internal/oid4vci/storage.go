package oid4vci

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

const defaultBackgroundColor = "#D3D3D3"

// credentialClaims are the claims of an issued credential used for display.
type credentialClaims struct {
	Types    []string
	Issuer   string
	ID       string
	IssuedAt time.Time
}

// decodeCredentialClaims reads the unverified payload of a JWT or SD-JWT credential.
func decodeCredentialClaims(raw string) (*credentialClaims, error) {
	token, _, _ := strings.Cut(raw, "~")
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("credential is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential payload: %w", err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("credential payload is not JSON")
	}
	doc := gjson.ParseBytes(payload)

	claims := &credentialClaims{
		Issuer: doc.Get("iss").String(),
		ID:     doc.Get("jti").String(),
	}
	if iat := doc.Get("iat"); iat.Exists() {
		claims.IssuedAt = time.Unix(iat.Int(), 0).UTC()
	}

	types := doc.Get("vc.type")
	switch {
	case types.IsArray():
		for _, t := range types.Array() {
			claims.Types = append(claims.Types, t.String())
		}
	case types.Exists():
		claims.Types = []string{types.String()}
	case doc.Get("vct").Exists():
		claims.Types = []string{doc.Get("vct").String()}
	}
	return claims, nil
}

// storeCredential persists an issued credential with the display hints of
// the matching credentials_supported entry and notifies the user.
func (o *Orchestrator) storeCredential(ctx context.Context, sess Session, resp *CredentialResponse) error {
	raw := string(resp.Credential)
	if raw == "" {
		return errors.New("credential response carries no credential")
	}

	claims, err := decodeCredentialClaims(raw)
	if err != nil {
		return err
	}

	logoURL := strings.TrimSuffix(o.cfg.BaseURL, "/") + "/alt-vc-logo.png"
	background := defaultBackgroundColor

	metadata, err := o.fetchIssuerMetadata(ctx, sess.LegalPerson.URL)
	if err != nil {
		o.logger.Warn("Using default credential display", zap.String("issuer", sess.LegalPerson.URL), zap.Error(err))
	} else {
		for _, cs := range metadata.supported() {
			if cs.Format != resp.Format || !sameTypes(cs.Types, claims.Types) {
				continue
			}
			if len(cs.Display) > 0 {
				if cs.Display[0].Logo != nil && cs.Display[0].Logo.URL != "" {
					logoURL = cs.Display[0].Logo.URL
				}
				if cs.Display[0].BackgroundColor != "" {
					background = cs.Display[0].BackgroundColor
				}
			}
			break
		}
	}

	identifier := claims.ID
	if identifier == "" {
		identifier = "urn:uuid:" + uuid.NewString()
	}

	credential := &domain.VerifiableCredential{
		HolderDID:            sess.HolderDID,
		CredentialIdentifier: identifier,
		Credential:           raw,
		Format:               domain.CredentialFormat(resp.Format),
		IssuerDID:            claims.Issuer,
		IssuerURL:            sess.LegalPerson.URL,
		IssuerFriendlyName:   sess.LegalPerson.FriendlyName,
		LogoURL:              logoURL,
		BackgroundColor:      background,
		IssuanceDate:         claims.IssuedAt,
	}
	if err := o.credentials.Create(ctx, credential); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	o.metrics.IncCredentialsStored()

	o.logger.Info("Stored credential",
		zap.String("username", sess.Username),
		zap.String("credential_identifier", identifier))

	if o.notifier != nil {
		if err := o.notifier.NotifyCredentialStored(ctx, sess.Username, credential); err != nil {
			o.logger.Warn("Failed to notify user", zap.String("username", sess.Username), zap.Error(err))
		}
	}
	return nil
}

// sameTypes compares type lists as sets.
func sameTypes(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}
