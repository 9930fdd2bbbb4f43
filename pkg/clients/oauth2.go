package clients

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Auth methods accepted in the source configuration.
const (
	AuthMethodAccessToken       = "access_token"
	AuthMethodAPIPassword       = "api_password"
	AuthMethodClientCredentials = "client_credentials"
)

// Credentials selects how Admin API calls are authenticated.
type Credentials struct {
	AuthMethod   string
	AccessToken  string
	ClientID     string
	ClientSecret string

	// TokenURL overrides https://<shop>/admin/oauth/access_token.
	TokenURL string
}

// NewTokenSource returns a token source for creds. Static tokens never
// expire; client credentials are exchanged at the shop's token endpoint and
// refreshed by oauth2 when they expire.
func NewTokenSource(ctx context.Context, shop string, creds Credentials, httpClient *http.Client) (oauth2.TokenSource, error) {
	switch creds.AuthMethod {
	case AuthMethodAccessToken, AuthMethodAPIPassword, "":
		if creds.AccessToken == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "access token is required")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken}), nil

	case AuthMethodClientCredentials:
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "client_id and client_secret are required")
		}
		tokenURL := creds.TokenURL
		if tokenURL == "" {
			tokenURL = fmt.Sprintf("https://%s/admin/oauth/access_token", ShopDomain(shop))
		}
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		return oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)), nil

	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported auth method %q", creds.AuthMethod)
	}
}
