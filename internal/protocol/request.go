package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/presexch"
)

// Accepted authorization request values.
const (
	ResponseTypeVPToken    = "vp_token"
	ResponseTypeIDToken    = "id_token"
	ScopeOpenID            = "openid"
	ResponseModeDirectPost = "direct_post"
)

// AuthorizationRequest is a validated OpenID4VP authorization request.
type AuthorizationRequest struct {
	ResponseType           string
	ClientID               string
	RedirectURI            string
	Scope                  string
	ResponseMode           string
	Nonce                  string
	State                  string
	RequestURI             string
	PresentationDefinition *presexch.PresentationDefinition
}

// RequestParser parses and validates authorization requests.
type RequestParser struct {
	client *Client
	logger *zap.Logger
}

// NewRequestParser creates a new RequestParser
func NewRequestParser(client *Client, logger *zap.Logger) *RequestParser {
	return &RequestParser{
		client: client,
		logger: logger.Named("request_parser"),
	}
}

// Validate parses an authorization request URL, reconciles it with the
// optional request object and resolves the presentation definition.
//
// The request object signature is not verified; its claims are only
// compared against the query parameters.
func (p *RequestParser) Validate(ctx context.Context, rawURL string) (*AuthorizationRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalid("authorization_request", err.Error())
	}
	query := u.Query()

	req := &AuthorizationRequest{
		ResponseType: query.Get("response_type"),
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		Scope:        query.Get("scope"),
		ResponseMode: query.Get("response_mode"),
		Nonce:        query.Get("nonce"),
		State:        query.Get("state"),
		RequestURI:   query.Get("request_uri"),
	}
	inlineDefinition := query.Get("presentation_definition")
	definitionURI := query.Get("presentation_definition_uri")

	if request := query.Get("request"); request != "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(request, claims); err != nil {
			return nil, invalid("request", "not a JWT: "+err.Error())
		}

		for _, check := range []struct {
			name  string
			query string
		}{
			{"response_type", req.ResponseType},
			{"scope", req.Scope},
			{"client_id", req.ClientID},
			{"redirect_uri", req.RedirectURI},
		} {
			if v := claimString(claims, check.name); v != "" && v != check.query {
				return nil, &ParamMismatchError{Param: check.name, Query: check.query, Override: v}
			}
		}

		if v := claimString(claims, "response_mode"); v != "" {
			req.ResponseMode = v
		}
		if v := claimString(claims, "nonce"); v != "" {
			req.Nonce = v
		}

		if v, ok := claims["presentation_definition"]; ok && v != nil {
			if s, isString := v.(string); isString {
				inlineDefinition = s
			} else {
				encoded, err := json.Marshal(v)
				if err != nil {
					return nil, invalid("presentation_definition", err.Error())
				}
				inlineDefinition = string(encoded)
			}
		}
		if v := claimString(claims, "presentation_definition_uri"); v != "" {
			definitionURI = v
		}
	}

	definition, err := p.ResolveDefinition(ctx, inlineDefinition, definitionURI)
	switch {
	case err == nil:
		req.PresentationDefinition = definition
	case errors.Is(err, ErrNoPresentationDefinition) && req.ResponseType == ResponseTypeIDToken:
		// id_token requests carry no definition
	default:
		return nil, err
	}

	if req.ResponseType != ResponseTypeVPToken && req.ResponseType != ResponseTypeIDToken {
		return nil, invalid("response_type", fmt.Sprintf("expected vp_token or id_token, got %q", req.ResponseType))
	}
	if req.ClientID == "" {
		return nil, invalid("client_id", "missing")
	}
	if req.RedirectURI == "" {
		return nil, invalid("redirect_uri", "missing")
	}
	if req.Scope != ScopeOpenID {
		return nil, invalid("scope", fmt.Sprintf("expected openid, got %q", req.Scope))
	}
	if req.ResponseMode != ResponseModeDirectPost {
		return nil, invalid("response_mode", fmt.Sprintf("expected direct_post, got %q", req.ResponseMode))
	}
	if req.Nonce == "" {
		return nil, invalid("nonce", "missing")
	}

	return req, nil
}

// ResolveDefinition returns the presentation definition given inline or by
// reference. Exactly one of the two must be set.
func (p *RequestParser) ResolveDefinition(ctx context.Context, inline, uri string) (*presexch.PresentationDefinition, error) {
	switch {
	case inline != "" && uri != "":
		return nil, invalid("presentation_definition", "both presentation_definition and presentation_definition_uri present")
	case inline == "" && uri == "":
		return nil, ErrNoPresentationDefinition
	case inline != "":
		definition, err := presexch.ParseDefinition([]byte(inline))
		if err != nil {
			return nil, invalid("presentation_definition", err.Error())
		}
		return definition, nil
	default:
		return p.FetchDefinition(ctx, uri)
	}
}

// FetchDefinition downloads a presentation definition.
func (p *RequestParser) FetchDefinition(ctx context.Context, uri string) (*presexch.PresentationDefinition, error) {
	if u, err := url.Parse(uri); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalid("presentation_definition_uri", fmt.Sprintf("not an absolute URL: %q", uri))
	}

	var raw json.RawMessage
	if err := p.client.GetJSON(ctx, uri, &raw); err != nil {
		p.logger.Warn("Failed to fetch presentation definition", zap.String("uri", uri), zap.Error(err))
		return nil, invalid("presentation_definition_uri", err.Error())
	}

	definition, err := presexch.ParseDefinition(raw)
	if err != nil {
		return nil, invalid("presentation_definition_uri", err.Error())
	}
	return definition, nil
}

func claimString(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
