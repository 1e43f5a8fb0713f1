// Package wallet holds the DID-keyed signing keys of wallet users.
package wallet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
)

// AlgES256 is the only signing algorithm wallet keys use.
const AlgES256 = "ES256"

// ErrInvalidKey is returned for stored keys that cannot be used for signing.
var ErrInvalidKey = errors.New("invalid wallet key")

// Key is the persisted form of a user's wallet key.
type Key struct {
	DID        string          `json:"did"`
	Alg        string          `json:"alg"`
	PrivateKey json.RawMessage `json:"privateKey"`
}

// GenerateKey creates a new P-256 key and its did:key identifier.
func GenerateKey() (*Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	did, err := DIDKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	jwkKey, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}
	if err := jwkKey.Set(jwk.KeyIDKey, KeyID(did)); err != nil {
		return nil, err
	}
	if err := jwkKey.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(jwkKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}

	return &Key{DID: did, Alg: AlgES256, PrivateKey: encoded}, nil
}

// ParseKey decodes a stored key.
func ParseKey(data []byte) (*Key, error) {
	var k Key
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if k.DID == "" || len(k.PrivateKey) == 0 {
		return nil, fmt.Errorf("%w: missing did or private key", ErrInvalidKey)
	}
	return &k, nil
}

// Marshal encodes the key for storage.
func (k *Key) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// privateKey returns the ECDSA private key held in the JWK.
func (k *Key) privateKey() (*ecdsa.PrivateKey, error) {
	parsed, err := jwk.ParseKey(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var priv ecdsa.PrivateKey
	if err := parsed.Raw(&priv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &priv, nil
}

// PublicJWK returns the public half of the key as a JWK with kid and alg set.
func (k *Key) PublicJWK() (jwk.Key, error) {
	parsed, err := jwk.ParseKey(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	pub, err := parsed.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if err := pub.Set(jwk.KeyIDKey, KeyID(k.DID)); err != nil {
		return nil, err
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return nil, err
	}
	if err := pub.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	return pub, nil
}

// DIDKey derives the did:key identifier of a P-256 public key:
// multibase base58btc of the multicodec prefixed compressed point.
func DIDKey(pub *ecdsa.PublicKey) (string, error) {
	if pub.Curve != elliptic.P256() {
		return "", fmt.Errorf("%w: only P-256 keys are supported", ErrInvalidKey)
	}

	prefix := binary.AppendUvarint(nil, uint64(multicodec.P256Pub))
	compressed := elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y)

	return "did:key:z" + base58.Encode(append(prefix, compressed...)), nil
}

// KeyID returns the verification method id used as JWT kid:
// the DID followed by its method-specific identifier as fragment.
func KeyID(did string) string {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 {
		return did
	}
	return did + "#" + strings.SplitN(parts[2], ":", 2)[0]
}
