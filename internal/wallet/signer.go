package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ProofType is the typ header of OpenID4VCI proof JWTs.
	ProofType = "openid4vci-proof+jwt"

	proofLifetime        = time.Minute
	idTokenLifetime      = time.Hour
	presentationLifetime = time.Hour

	credentialsContext = "https://www.w3.org/2018/credentials/v1"
)

// Signer signs wallet JWTs with a user's DID key.
type Signer struct {
	did string
	kid string
	key *ecdsa.PrivateKey
	now func() time.Time
}

// NewSigner returns a signer for the given key.
func NewSigner(k *Key) (*Signer, error) {
	priv, err := k.privateKey()
	if err != nil {
		return nil, err
	}
	return &Signer{did: k.DID, kid: KeyID(k.DID), key: priv, now: time.Now}, nil
}

// DID returns the DID the signer acts for.
func (s *Signer) DID() string {
	return s.did
}

// KeyID returns the kid placed in signed headers.
func (s *Signer) KeyID() string {
	return s.kid
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

func (s *Signer) sign(typ string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = typ
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", typ, err)
	}
	return signed, nil
}

// ProofJWT signs a proof of possession bound to the issuer's c_nonce.
func (s *Signer) ProofJWT(nonce, audience string) (string, error) {
	now := s.now()
	return s.sign(ProofType, jwt.MapClaims{
		"nonce": nonce,
		"iss":   s.did,
		"aud":   audience,
		"iat":   now.Unix(),
		"exp":   now.Add(proofLifetime).Unix(),
	})
}

// IDToken signs a self-issued ID token for the given verifier.
func (s *Signer) IDToken(nonce, audience string) (string, error) {
	now := s.now()
	return s.sign("JWT", jwt.MapClaims{
		"iss":   s.did,
		"sub":   s.did,
		"aud":   audience,
		"nonce": nonce,
		"iat":   now.Unix(),
		"exp":   now.Add(idTokenLifetime).Unix(),
	})
}

// Presentation is a signed verifiable presentation.
type Presentation struct {
	ID           string
	Token        string
	IssuanceDate time.Time
}

// SignPresentation bundles raw credential tokens into a jwt_vp.
func (s *Signer) SignPresentation(nonce, audience string, credentials []string) (*Presentation, error) {
	now := s.now()
	id := "urn:id:" + uuid.NewString()
	if credentials == nil {
		credentials = []string{}
	}

	token, err := s.sign("JWT", jwt.MapClaims{
		"jti":   id,
		"iss":   s.did,
		"sub":   s.did,
		"aud":   audience,
		"nonce": nonce,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(presentationLifetime).Unix(),
		"vp": map[string]interface{}{
			"@context":             []string{credentialsContext},
			"type":                 []string{"VerifiablePresentation"},
			"holder":               s.did,
			"verifiableCredential": credentials,
			"issuanceDate":         now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}

	return &Presentation{ID: id, Token: token, IssuanceDate: now.UTC().Truncate(time.Second)}, nil
}
