package oid4vci

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/session"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage/memory"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

const (
	testBaseURL   = "https://wallet.example.com"
	testClientURL = "https://app.example.com/cb"
	issuerDID     = "did:ebsi:issuer"
)

var diplomaTypes = []string{"VerifiableCredential", "Diploma"}

func issuedCredential(t *testing.T, jti string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuerDID,
		"jti": jti,
		"iat": 1700000000,
		"vc":  map[string]interface{}{"type": diplomaTypes},
	}).SignedString([]byte("issuer-secret"))
	require.NoError(t, err)
	return token
}

// fakeIssuer is a credential issuer and authorization server in one.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server

	requests     atomic.Int32
	deferred     atomic.Bool
	failToken    atomic.Bool
	release      chan struct{}
	deferredHits atomic.Int32

	mu         sync.Mutex
	tokenForms []url.Values
	credBodies []map[string]interface{}
	offerJSON  string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	f := &fakeIssuer{t: t, release: make(chan struct{})}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string { return f.server.URL }

func (f *fakeIssuer) handle(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/.well-known/openid-credential-issuer":
		_ = json.NewEncoder(w).Encode(IssuerMetadata{
			CredentialIssuer:           f.URL(),
			CredentialEndpoint:         f.URL() + "/credential",
			DeferredCredentialEndpoint: f.URL() + "/deferred",
			CredentialsSupported: []CredentialSupported{{
				ID:     "diploma",
				Format: "jwt_vc",
				Types:  diplomaTypes,
				Display: []CredentialDisplay{{
					Name:            "University Diploma",
					BackgroundColor: "#112233",
					Logo:            &Logo{URL: "https://issuer.example.com/logo.png"},
				}},
			}},
		})
	case "/.well-known/openid-configuration":
		_ = json.NewEncoder(w).Encode(OpenIDConfiguration{
			AuthorizationEndpoint: f.URL() + "/authorize",
			TokenEndpoint:         f.URL() + "/token",
		})
	case "/offer":
		f.mu.Lock()
		offer := f.offerJSON
		f.mu.Unlock()
		_, _ = w.Write([]byte(offer))
	case "/token":
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForms = append(f.tokenForms, r.PostForm)
		f.mu.Unlock()
		if f.failToken.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "access-1", CNonce: "nonce-1"})
	case "/credential":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.credBodies = append(f.credBodies, body)
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.deferred.Load() {
			_ = json.NewEncoder(w).Encode(map[string]string{"acceptance_token": "acceptance-1"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"format": "jwt_vc", "credential": issuedCredential(f.t, "urn:cred:1")})
	case "/deferred":
		f.deferredHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer acceptance-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		select {
		case <-f.release:
			_ = json.NewEncoder(w).Encode(map[string]string{"format": "jwt_vc", "credential": issuedCredential(f.t, "urn:cred:deferred")})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"issuance_pending"}`))
		}
	default:
		http.NotFound(w, r)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyCredentialStored(_ context.Context, username string, credential *domain.VerifiableCredential) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, username+":"+credential.CredentialIdentifier)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fixture struct {
	orch     *Orchestrator
	store    *memory.Store
	issuer   *fakeIssuer
	notifier *recordingNotifier
	did      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	issuer := newFakeIssuer(t)

	key, err := wallet.GenerateKey()
	require.NoError(t, err)
	keys, err := key.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		UUID: domain.NewUserID(), Username: "alice", DID: key.DID, Keys: keys,
	}))
	require.NoError(t, store.LegalPersons().Create(ctx, &domain.LegalPerson{
		DID: issuerDID, URL: issuer.URL(), FriendlyName: "Test University", IsIssuer: true,
	}))

	notifier := &recordingNotifier{}
	orch := New(Config{
		BaseURL:         testBaseURL,
		WalletClientURL: testClientURL,
		Poll:            PollPolicy{Delay: 10 * time.Millisecond},
	}, Deps{
		Sessions:     session.NewMemoryStore[Session](zap.NewNop()),
		LegalPersons: store.LegalPersons(),
		Wallet:       wallet.NewProvider(store.Users(), zap.NewNop()),
		Credentials:  store.Credentials(),
		Notifier:     notifier,
		Client:       protocol.NewClient(5 * time.Second),
		Logger:       zap.NewNop(),
	})
	t.Cleanup(orch.Close)

	return &fixture{orch: orch, store: store, issuer: issuer, notifier: notifier, did: key.DID}
}

func (f *fixture) stored(t *testing.T) []*domain.VerifiableCredential {
	t.Helper()
	creds, err := f.store.Credentials().GetAllByHolder(context.Background(), f.did)
	require.NoError(t, err)
	return creds
}

func offerURL(t *testing.T, offer map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(offer)
	require.NoError(t, err)
	return "openid-credential-offer://?credential_offer=" + url.QueryEscape(string(data))
}

func TestPKCE(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	verifier, err := NewCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, verifier, 43)
	assert.NotContains(t, CodeChallenge(verifier), "=")
}

func TestSameTypes(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"equal", diplomaTypes, diplomaTypes, true},
		{"reordered", []string{"Diploma", "VerifiableCredential"}, diplomaTypes, true},
		{"duplicates", []string{"Diploma", "VerifiableCredential", "Diploma"}, diplomaTypes, true},
		{"subset", []string{"VerifiableCredential"}, diplomaTypes, false},
		{"different", []string{"VerifiableCredential", "Passport"}, diplomaTypes, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameTypes(tt.a, tt.b))
		})
	}
}

func TestStoreCredential_ReorderedTypesKeepDisplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lp, err := f.store.LegalPersons().GetByDID(ctx, issuerDID)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuerDID,
		"jti": "urn:cred:reordered",
		"iat": 1700000000,
		"vc":  map[string]interface{}{"type": []string{"Diploma", "VerifiableCredential"}},
	}).SignedString([]byte("issuer-secret"))
	require.NoError(t, err)

	sess := Session{Username: "alice", HolderDID: f.did, LegalPerson: *lp}
	require.NoError(t, f.orch.storeCredential(ctx, sess, &CredentialResponse{
		Format:     "jwt_vc",
		Credential: CredentialValue(token),
	}))

	creds := f.stored(t)
	require.Len(t, creds, 1)
	assert.Equal(t, "https://issuer.example.com/logo.png", creds[0].LogoURL)
	assert.Equal(t, "#112233", creds[0].BackgroundColor)
}

func TestGenerateAuthorizationRequestURL_LegalPerson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	redirect, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "openid", q.Get("scope"))
	assert.Equal(t, f.did, q.Get("client_id"))
	assert.Equal(t, testClientURL, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, CodeChallengeMethod, q.Get("code_challenge_method"))
	assert.False(t, q.Has("issuer_state"))

	var details []AuthorizationDetail
	require.NoError(t, json.Unmarshal([]byte(q.Get("authorization_details")), &details))
	require.Len(t, details, 1)
	assert.Equal(t, AuthorizationDetail{
		Type: "openid_credential", Format: "jwt_vc", Types: diplomaTypes, Locations: []string{f.issuer.URL()},
	}, details[0])

	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(q.Get("client_metadata")), &metadata))
	assert.Equal(t, testBaseURL+"/jwks", metadata["jwks_uri"])
	assert.Equal(t, []interface{}{"vp_token", "id_token"}, metadata["response_types_supported"])

	sess, err := f.orch.sessions.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, GrantAuthorizationCode, sess.GrantType)
	assert.Equal(t, CodeChallenge(sess.CodeVerifier), q.Get("code_challenge"))
	assert.Empty(t, sess.UserPIN)

	_, err = f.orch.GetIssuerState(ctx, "alice")
	assert.ErrorIs(t, err, protocol.ErrState)
}

func TestGenerateAuthorizationRequestURL_PreAuthorizedOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer := offerURL(t, map[string]interface{}{
		"credential_issuer": f.issuer.URL(),
		"credentials":       []interface{}{map[string]interface{}{"format": "jwt_vc", "types": diplomaTypes}},
		"grants": map[string]interface{}{
			"authorization_code": map[string]interface{}{"issuer_state": "state-1"},
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]interface{}{
				"pre-authorized_code": "pre-code",
				"user_pin_required":   true,
			},
		},
	})

	redirect, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", offer, "")
	require.NoError(t, err)
	assert.Equal(t, testClientURL+"?preauth=true&ask_for_pin=true", redirect)

	sess, err := f.orch.sessions.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, GrantPreAuthorizedCode, sess.GrantType)
	assert.Equal(t, "pre-code", sess.Code)
	assert.Empty(t, sess.CodeVerifier)

	state, err := f.orch.GetIssuerState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "state-1", state)
}

func TestGenerateAuthorizationRequestURL_OfferByReference(t *testing.T) {
	f := newFixture(t)
	f.issuer.mu.Lock()
	f.issuer.offerJSON = `{"credential_issuer":"` + f.issuer.URL() + `","credentials":["diploma"],"grants":{"authorization_code":{"issuer_state":"ref-state"}}}`
	f.issuer.mu.Unlock()

	offer := "openid-credential-offer://?credential_offer_uri=" + url.QueryEscape(f.issuer.URL()+"/offer")
	redirect, err := f.orch.GenerateAuthorizationRequestURL(context.Background(), "alice", offer, "")
	require.NoError(t, err)

	q, err := url.ParseQuery(strings.SplitN(redirect, "?", 2)[1])
	require.NoError(t, err)
	assert.Equal(t, "ref-state", q.Get("issuer_state"))

	var details []AuthorizationDetail
	require.NoError(t, json.Unmarshal([]byte(q.Get("authorization_details")), &details))
	require.Len(t, details, 1)
	assert.Equal(t, diplomaTypes, details[0].Types)
}

func TestGenerateAuthorizationRequestURL_Unresolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", "did:ebsi:unknown")
	assert.ErrorIs(t, err, protocol.ErrIssuerResolution)

	_, err = f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", "")
	assert.ErrorIs(t, err, protocol.ErrIssuerResolution)

	offer := offerURL(t, map[string]interface{}{"credential_issuer": "https://unknown.example.com", "grants": map[string]interface{}{}})
	_, err = f.orch.GenerateAuthorizationRequestURL(ctx, "alice", offer, "")
	assert.ErrorIs(t, err, protocol.ErrIssuerResolution)

	_, err = f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "openid-credential-offer://?nothing=here", "")
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestHandleAuthorizationResponse_MissingCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.HandleAuthorizationResponse(context.Background(), "alice", testClientURL+"?state=x")
	assert.ErrorIs(t, err, protocol.ErrMissingCode)
	assert.Zero(t, f.issuer.requests.Load())
}

func TestHandleAuthorizationResponse_NoSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.HandleAuthorizationResponse(context.Background(), "alice", testClientURL+"?code=abc")
	assert.ErrorIs(t, err, protocol.ErrState)

	_, err = f.orch.RequestCredentialsWithPreAuthorizedGrant(context.Background(), "alice", "1234")
	assert.ErrorIs(t, err, protocol.ErrState)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)

	task, err := f.orch.HandleAuthorizationResponse(ctx, "alice", testClientURL+"?code=auth-code")
	require.NoError(t, err)
	require.NoError(t, task.Result())

	sess, err := f.orch.sessions.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, sess.TokenResponse)
	assert.Len(t, sess.CredentialResponses, 1)

	f.issuer.mu.Lock()
	require.Len(t, f.issuer.tokenForms, 1)
	form := f.issuer.tokenForms[0]
	require.Len(t, f.issuer.credBodies, 1)
	body := f.issuer.credBodies[0]
	f.issuer.mu.Unlock()

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, testClientURL, form.Get("redirect_uri"))
	assert.Equal(t, sess.CodeVerifier, form.Get("code_verifier"))
	assert.Equal(t, f.did, form.Get("client_id"))

	assert.Equal(t, "jwt_vc", body["format"])
	assert.Equal(t, "openid_credential", body["type"])
	proof := body["proof"].(map[string]interface{})
	assert.Equal(t, "jwt", proof["proof_type"])

	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(proof["jwt"].(string), claims)
	require.NoError(t, err)
	assert.Equal(t, wallet.ProofType, parsed.Header["typ"])
	assert.Equal(t, "nonce-1", claims["nonce"])
	assert.Equal(t, f.issuer.URL(), claims["aud"])

	creds := f.stored(t)
	require.Len(t, creds, 1)
	cred := creds[0]
	assert.Equal(t, "urn:cred:1", cred.CredentialIdentifier)
	assert.Equal(t, issuerDID, cred.IssuerDID)
	assert.Equal(t, "Test University", cred.IssuerFriendlyName)
	assert.Equal(t, "https://issuer.example.com/logo.png", cred.LogoURL)
	assert.Equal(t, "#112233", cred.BackgroundColor)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), cred.IssuanceDate)
	assert.Equal(t, 1, f.notifier.count())
}

func TestPreAuthorizedFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer := offerURL(t, map[string]interface{}{
		"credential_issuer": f.issuer.URL(),
		"grants": map[string]interface{}{
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]interface{}{"pre-authorized_code": "pre-code"},
		},
	})
	redirect, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", offer, "")
	require.NoError(t, err)
	assert.Contains(t, redirect, "preauth=true&ask_for_pin=false")

	// an authorization code does not fit a pre-authorized session
	_, err = f.orch.HandleAuthorizationResponse(ctx, "alice", testClientURL+"?code=abc")
	assert.ErrorIs(t, err, protocol.ErrState)

	task, err := f.orch.RequestCredentialsWithPreAuthorizedGrant(ctx, "alice", "1234")
	require.NoError(t, err)

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("issuance task did not finish")
	}
	require.NoError(t, task.Result())

	f.issuer.mu.Lock()
	form := f.issuer.tokenForms[0]
	f.issuer.mu.Unlock()
	assert.Equal(t, string(GrantPreAuthorizedCode), form.Get("grant_type"))
	assert.Equal(t, "pre-code", form.Get("pre-authorized_code"))
	assert.Equal(t, "1234", form.Get("user_pin"))
	assert.False(t, form.Has("code_verifier"))

	assert.Len(t, f.stored(t), 1)
}

func TestTokenExchangeFailure(t *testing.T) {
	f := newFixture(t)
	f.issuer.failToken.Store(true)
	ctx := context.Background()

	_, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)

	task, err := f.orch.HandleAuthorizationResponse(ctx, "alice", testClientURL+"?code=bad")
	require.NoError(t, err)

	err = task.Result()
	assert.ErrorIs(t, err, protocol.ErrTokenExchange)
	assert.NotContains(t, err.Error(), "invalid_grant")
	assert.Empty(t, f.stored(t))
	assert.Zero(t, f.notifier.count())
}

func TestDeferredCredential(t *testing.T) {
	f := newFixture(t)
	f.issuer.deferred.Store(true)
	ctx := context.Background()

	_, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)
	task, err := f.orch.HandleAuthorizationResponse(ctx, "alice", testClientURL+"?code=c")
	require.NoError(t, err)
	require.NoError(t, task.Result())

	require.Eventually(t, func() bool { return f.issuer.deferredHits.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.stored(t), "deferred credential stored before it was issued")
	assert.Equal(t, 1, f.orch.poller.Pending())

	close(f.issuer.release)

	require.Eventually(t, func() bool { return len(f.stored(t)) == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.orch.poller.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	creds := f.stored(t)
	require.Len(t, creds, 1)
	assert.Equal(t, "urn:cred:deferred", creds[0].CredentialIdentifier)
	assert.Equal(t, 1, f.notifier.count())
}

func TestDeferredCancelledOnNewFlow(t *testing.T) {
	f := newFixture(t)
	f.issuer.deferred.Store(true)
	ctx := context.Background()

	_, err := f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)
	task, err := f.orch.HandleAuthorizationResponse(ctx, "alice", testClientURL+"?code=c")
	require.NoError(t, err)
	require.NoError(t, task.Result())
	require.Eventually(t, func() bool { return f.orch.poller.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)

	_, err = f.orch.GenerateAuthorizationRequestURL(ctx, "alice", "", issuerDID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.orch.poller.Pending())

	hits := f.issuer.deferredHits.Load()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, f.issuer.deferredHits.Load(), hits+1)
	assert.Empty(t, f.stored(t))
}

func TestAvailableSupportedCredentials(t *testing.T) {
	f := newFixture(t)

	supported, err := f.orch.AvailableSupportedCredentials(context.Background(), issuerDID)
	require.NoError(t, err)
	assert.Equal(t, []SupportedCredential{{ID: "diploma", DisplayName: "University Diploma"}}, supported)

	_, err = f.orch.AvailableSupportedCredentials(context.Background(), "did:ebsi:unknown")
	assert.ErrorIs(t, err, protocol.ErrIssuerResolution)
}

func TestDecodeCredentialClaims(t *testing.T) {
	claims, err := decodeCredentialClaims(issuedCredential(t, "urn:cred:9") + "~disclosure~")
	require.NoError(t, err)
	assert.Equal(t, diplomaTypes, claims.Types)
	assert.Equal(t, issuerDID, claims.Issuer)
	assert.Equal(t, "urn:cred:9", claims.ID)

	_, err = decodeCredentialClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestCredentialValue_Unmarshal(t *testing.T) {
	var resp CredentialResponse
	require.NoError(t, json.Unmarshal([]byte(`{"format":"ldp_vc","credential":{"id":"urn:x"}}`), &resp))
	assert.JSONEq(t, `{"id":"urn:x"}`, string(resp.Credential))

	require.NoError(t, json.Unmarshal([]byte(`{"format":"jwt_vc","credential":"a.b.c"}`), &resp))
	assert.Equal(t, CredentialValue("a.b.c"), resp.Credential)
}
