package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/presexch"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage/memory"
)

func parseSigned(t *testing.T, s *Signer, token string) (jwt.MapClaims, map[string]interface{}) {
	t.Helper()
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	return claims, parsed.Header
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key.DID, "did:key:z"))
	assert.Equal(t, AlgES256, key.Alg)

	signer, err := NewSigner(key)
	require.NoError(t, err)

	// the DID decodes back to the signer's public key
	decoded, err := base58.Decode(strings.TrimPrefix(key.DID, "did:key:z"))
	require.NoError(t, err)
	codec, n := binary.Uvarint(decoded)
	assert.Equal(t, uint64(multicodec.P256Pub), codec)
	assert.Len(t, decoded[n:], 33)

	again, err := DIDKey(signer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, key.DID, again)
}

func TestParseKey_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	data, err := key.Marshal()
	require.NoError(t, err)

	parsed, err := ParseKey(data)
	require.NoError(t, err)
	assert.Equal(t, key.DID, parsed.DID)

	_, err = ParseKey([]byte(`{"did":""}`))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyID(t *testing.T) {
	assert.Equal(t, "did:key:zAbc#zAbc", KeyID("did:key:zAbc"))
	assert.Equal(t, "did:ebsi:123#123", KeyID("did:ebsi:123"))
	assert.Equal(t, "did:web:example.com:user#example.com", KeyID("did:web:example.com:user"))
	assert.Equal(t, "invalid", KeyID("invalid"))
}

func TestSigner_ProofJWT(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)

	token, err := signer.ProofJWT("c-nonce", "https://issuer.example.com")
	require.NoError(t, err)

	claims, header := parseSigned(t, signer, token)
	assert.Equal(t, "ES256", header["alg"])
	assert.Equal(t, ProofType, header["typ"])
	assert.Equal(t, KeyID(key.DID), header["kid"])
	assert.Equal(t, "c-nonce", claims["nonce"])
	assert.Equal(t, key.DID, claims["iss"])
	assert.Equal(t, "https://issuer.example.com", claims["aud"])
	assert.Equal(t, float64(60), claims["exp"].(float64)-claims["iat"].(float64))
}

func TestSigner_IDToken(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)

	token, err := signer.IDToken("n-1", "verifier-client")
	require.NoError(t, err)

	claims, header := parseSigned(t, signer, token)
	assert.Equal(t, "JWT", header["typ"])
	assert.Equal(t, key.DID, claims["iss"])
	assert.Equal(t, key.DID, claims["sub"])
	assert.Equal(t, "verifier-client", claims["aud"])
	assert.Equal(t, "n-1", claims["nonce"])
	assert.Equal(t, float64(3600), claims["exp"].(float64)-claims["iat"].(float64))
}

func TestSigner_SignPresentation(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)

	vp, err := signer.SignPresentation("n-2", "verifier-client", []string{"cred.jwt"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(vp.ID, "urn:id:"))

	claims, _ := parseSigned(t, signer, vp.Token)
	assert.Equal(t, vp.ID, claims["jti"])
	assert.Equal(t, claims["iat"], claims["nbf"])

	inner := claims["vp"].(map[string]interface{})
	assert.Equal(t, key.DID, inner["holder"])
	assert.Equal(t, []interface{}{"VerifiablePresentation"}, inner["type"])
	assert.Equal(t, []interface{}{"cred.jwt"}, inner["verifiableCredential"])
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	key, err := GenerateKey()
	require.NoError(t, err)
	data, err := key.Marshal()
	require.NoError(t, err)

	require.NoError(t, store.Users().Create(ctx, &domain.User{
		UUID: domain.NewUserID(), Username: "alice", DID: key.DID, Keys: data,
	}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		UUID: domain.NewUserID(), Username: "nokey", DID: "did:key:none",
	}))

	provider := NewProvider(store.Users(), zap.NewNop())

	signer, err := provider.SignerFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, key.DID, signer.DID())

	_, err = provider.SignerFor(ctx, "nokey")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = provider.SignerFor(ctx, "unknown")
	assert.Error(t, err)

	set, err := provider.JWKS(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	pub, ok := set.Key(0)
	require.True(t, ok)
	assert.Equal(t, KeyID(key.DID), pub.KeyID())

	var raw ecdsa.PublicKey
	require.NoError(t, pub.Raw(&raw))
	assert.True(t, raw.Equal(signer.PublicKey()))

	encoded, err := json.Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), `"d"`)
}

func TestProvider_MatchDescriptor(t *testing.T) {
	provider := NewProvider(memory.NewStore().Users(), zap.NewNop())

	var descriptor presexch.InputDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "diploma",
		"constraints": {"fields": [{"path": ["$.vc.type"], "filter": {"type": "array", "contains": {"const": "Diploma"}}}]}
	}`), &descriptor))

	cred := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"vc": map[string]interface{}{"type": []string{"VerifiableCredential", "Diploma"}},
	})
	raw, err := cred.SignedString([]byte("secret"))
	require.NoError(t, err)

	match, err := provider.MatchDescriptor(descriptor, raw)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = provider.MatchDescriptor(descriptor, "garbage")
	require.NoError(t, err)
	assert.False(t, match)
}
