package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const definitionJSON = `{"id":"pd-1","input_descriptors":[{"id":"diploma","constraints":{"fields":[{"path":["$.vc.type"]}]}}]}`

func newParser() *RequestParser {
	return NewRequestParser(NewClient(5*time.Second), zap.NewNop())
}

func baseParams() url.Values {
	return url.Values{
		"response_type":           {"vp_token"},
		"client_id":               {"verifier"},
		"redirect_uri":            {"https://verifier.example.com/cb"},
		"scope":                   {"openid"},
		"response_mode":           {"direct_post"},
		"nonce":                   {"n-1"},
		"state":                   {"s-1"},
		"presentation_definition": {definitionJSON},
	}
}

func requestURL(params url.Values) string {
	return "openid4vp://authorize?" + params.Encode()
}

func requestObject(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("verifier-secret"))
	require.NoError(t, err)
	return token
}

func TestErrors_Is(t *testing.T) {
	var err error = &ValidationError{Field: "scope", Reason: "bad"}
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrParamMismatch)
	assert.Contains(t, err.Error(), "scope")

	err = fmt.Errorf("wrapped: %w", &ParamMismatchError{Param: "client_id", Query: "a", Override: "b"})
	assert.ErrorIs(t, err, ErrParamMismatch)
	assert.ErrorIs(t, err, ErrValidation)

	var mismatch *ParamMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "client_id", mismatch.Param)
}

func TestValidate_Valid(t *testing.T) {
	req, err := newParser().Validate(context.Background(), requestURL(baseParams()))
	require.NoError(t, err)

	assert.Equal(t, "vp_token", req.ResponseType)
	assert.Equal(t, "verifier", req.ClientID)
	assert.Equal(t, "n-1", req.Nonce)
	assert.Equal(t, "s-1", req.State)
	require.NotNil(t, req.PresentationDefinition)
	assert.Equal(t, "pd-1", req.PresentationDefinition.ID)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(url.Values)
	}{
		{"response type", "response_type", func(v url.Values) { v.Set("response_type", "code") }},
		{"scope", "scope", func(v url.Values) { v.Set("scope", "profile") }},
		{"response mode", "response_mode", func(v url.Values) { v.Set("response_mode", "fragment") }},
		{"missing client id", "client_id", func(v url.Values) { v.Del("client_id") }},
		{"missing redirect uri", "redirect_uri", func(v url.Values) { v.Del("redirect_uri") }},
		{"missing nonce", "nonce", func(v url.Values) { v.Del("nonce") }},
		{"both definitions", "presentation_definition", func(v url.Values) {
			v.Set("presentation_definition_uri", "https://verifier.example.com/pd")
		}},
		{"malformed definition", "presentation_definition", func(v url.Values) { v.Set("presentation_definition", `{"id":""}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			tt.edit(params)

			_, err := newParser().Validate(context.Background(), requestURL(params))
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_NoDefinition(t *testing.T) {
	params := baseParams()
	params.Del("presentation_definition")

	_, err := newParser().Validate(context.Background(), requestURL(params))
	assert.ErrorIs(t, err, ErrNoPresentationDefinition)

	// id_token requests do not need one
	params.Set("response_type", "id_token")
	req, err := newParser().Validate(context.Background(), requestURL(params))
	require.NoError(t, err)
	assert.Nil(t, req.PresentationDefinition)
}

func TestValidate_RequestObject(t *testing.T) {
	t.Run("client id mismatch", func(t *testing.T) {
		params := baseParams()
		params.Set("request", requestObject(t, jwt.MapClaims{"client_id": "someone-else"}))

		_, err := newParser().Validate(context.Background(), requestURL(params))
		assert.ErrorIs(t, err, ErrParamMismatch)
	})

	t.Run("overrides nonce and response mode", func(t *testing.T) {
		params := baseParams()
		params.Set("response_mode", "fragment")
		params.Set("request", requestObject(t, jwt.MapClaims{
			"client_id":     "verifier",
			"response_mode": "direct_post",
			"nonce":         "from-request",
		}))

		req, err := newParser().Validate(context.Background(), requestURL(params))
		require.NoError(t, err)
		assert.Equal(t, "from-request", req.Nonce)
		assert.Equal(t, "direct_post", req.ResponseMode)
	})

	t.Run("definition object wins", func(t *testing.T) {
		var definition map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(`{"id":"from-request","input_descriptors":[{"id":"x"}]}`), &definition))

		params := baseParams()
		params.Del("presentation_definition")
		params.Set("request", requestObject(t, jwt.MapClaims{"presentation_definition": definition}))

		req, err := newParser().Validate(context.Background(), requestURL(params))
		require.NoError(t, err)
		assert.Equal(t, "from-request", req.PresentationDefinition.ID)
	})

	t.Run("not a jwt", func(t *testing.T) {
		params := baseParams()
		params.Set("request", "garbage")

		_, err := newParser().Validate(context.Background(), requestURL(params))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestValidate_DefinitionURI(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/pd" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(definitionJSON))
	}))
	defer server.Close()

	params := baseParams()
	params.Del("presentation_definition")
	params.Set("presentation_definition_uri", server.URL+"/pd")

	req, err := newParser().Validate(context.Background(), requestURL(params))
	require.NoError(t, err)
	assert.Equal(t, "pd-1", req.PresentationDefinition.ID)

	params.Set("presentation_definition_uri", server.URL+"/missing")
	_, err = newParser().Validate(context.Background(), requestURL(params))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDirectPoster(t *testing.T) {
	var received url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = r.PostForm
		switch r.URL.Path {
		case "/redirect":
			w.Header().Set("Location", "https://verifier/cb?code=1")
			w.WriteHeader(http.StatusFound)
		case "/no-location":
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	poster := NewDirectPoster(5*time.Second, zap.NewNop())
	ctx := context.Background()

	location := poster.Post(ctx, server.URL+"/redirect", url.Values{"id_token": {"tok"}, "state": {"s"}})
	assert.Equal(t, "https://verifier/cb?code=1", location)
	assert.Equal(t, "tok", received.Get("id_token"))
	assert.Equal(t, "s", received.Get("state"))

	assert.Empty(t, poster.Post(ctx, server.URL+"/ok", url.Values{}))
	assert.Empty(t, poster.Post(ctx, server.URL+"/no-location", url.Values{}))

	server.Close()
	assert.Empty(t, poster.Post(ctx, server.URL+"/redirect", url.Values{}))
}

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": body["value"]})
		case "/form":
			require.NoError(t, r.ParseForm())
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": r.PostForm.Get("value")})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("upstream detail"))
		}
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	ctx := context.Background()

	var out map[string]string
	require.NoError(t, client.PostJSON(ctx, server.URL+"/json", "tok", map[string]string{"value": "a"}, &out))
	assert.Equal(t, "a", out["echo"])

	require.NoError(t, client.PostForm(ctx, server.URL+"/form", url.Values{"value": {"b"}}, &out))
	assert.Equal(t, "b", out["echo"])

	err := client.GetJSON(ctx, server.URL+"/fail", &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "upstream detail", statusErr.Body)
	assert.NotContains(t, err.Error(), "upstream detail")
}
