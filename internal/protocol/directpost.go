package protocol

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DirectPoster delivers authorization responses with response_mode=direct_post.
type DirectPoster struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDirectPoster creates a DirectPoster. Redirects are never followed.
func NewDirectPoster(timeout time.Duration, logger *zap.Logger) *DirectPoster {
	return &DirectPoster{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.Named("direct_post"),
	}
}

// Post form-encodes params to redirectURI and returns the Location of a 3xx
// answer. Any other answer, or a transport failure, yields "".
func (p *DirectPoster) Post(ctx context.Context, redirectURI string, params url.Values) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, redirectURI, strings.NewReader(params.Encode()))
	if err != nil {
		p.logger.Warn("Invalid direct post target", zap.String("redirect_uri", redirectURI), zap.Error(err))
		return ""
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Direct post failed", zap.String("redirect_uri", redirectURI), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		p.logger.Info("Verifier did not redirect",
			zap.String("redirect_uri", redirectURI),
			zap.Int("status", resp.StatusCode))
		return ""
	}

	location := resp.Header.Get("Location")
	if location == "" {
		p.logger.Warn("Redirect without Location", zap.String("redirect_uri", redirectURI), zap.Int("status", resp.StatusCode))
	}
	return location
}
