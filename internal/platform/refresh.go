package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

// ErrGrantRevoked means the refresh grant can never succeed again and the
// account owner has to reconnect.
var ErrGrantRevoked = errors.New("refresh grant revoked")

// Grant is the decrypted token material a refresh starts from.
type Grant struct {
	AccessToken  string
	RefreshToken string
}

type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Refresher exchanges a grant for a fresh access token. Errors wrapping
// ErrGrantRevoked are permanent; any other error is worth retrying.
type Refresher interface {
	Refresh(ctx context.Context, g Grant) (*Token, error)
}

// PageRefresher additionally re-derives a page token from the parent account token.
type PageRefresher interface {
	RefreshPage(ctx context.Context, accountToken, pageExternalID string) (*Token, error)
}

type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

var twitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://x.com/i/oauth2/authorize",
	TokenURL:  "https://api.x.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// OAuth2Refresher runs a standard refresh_token grant through x/oauth2.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func newOAuth2Refresher(c OAuthClient, endpoint oauth2.Endpoint, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &OAuth2Refresher{
		config:     &oauth2.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Endpoint: endpoint},
		httpClient: httpClient,
	}
}

// NewGoogleRefresher refreshes YouTube tokens. tokenURL overrides the
// endpoint when non-empty.
func NewGoogleRefresher(c OAuthClient, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	return newOAuth2Refresher(c, google.Endpoint, tokenURL, httpClient)
}

func NewLinkedInRefresher(c OAuthClient, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	return newOAuth2Refresher(c, linkedin.Endpoint, tokenURL, httpClient)
}

func NewTwitterRefresher(c OAuthClient, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	return newOAuth2Refresher(c, twitterEndpoint, tokenURL, httpClient)
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, g Grant) (*Token, error) {
	if g.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrGrantRevoked)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: g.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 &&
			re.Response.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", ErrGrantRevoked, retrieveMessage(re))
		}
		return nil, err
	}

	out := &Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

func retrieveMessage(re *oauth2.RetrieveError) string {
	if re.ErrorCode != "" {
		if re.ErrorDescription != "" {
			return re.ErrorCode + ": " + re.ErrorDescription
		}
		return re.ErrorCode
	}
	return truncate(string(re.Body), maxErrorBody)
}

// InstagramRefresher extends a long-lived Instagram token with itself.
type InstagramRefresher struct {
	baseURL    string
	httpClient *http.Client
}

func NewInstagramRefresher(baseURL string, httpClient *http.Client) *InstagramRefresher {
	if baseURL == "" {
		baseURL = "https://graph.instagram.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &InstagramRefresher{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (r *InstagramRefresher) Refresh(ctx context.Context, g Grant) (*Token, error) {
	if g.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token stored", ErrGrantRevoked)
	}
	q := url.Values{"grant_type": {"ig_refresh_token"}, "access_token": {g.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/refresh_access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := doTokenRequest(r.httpClient, req, &out); err != nil {
		return nil, err
	}
	return &Token{AccessToken: out.AccessToken, ExpiresAt: expiresIn(out.ExpiresIn)}, nil
}

// TikTokRefresher uses TikTok's client_key flavoured refresh grant.
type TikTokRefresher struct {
	client     OAuthClient
	tokenURL   string
	httpClient *http.Client
}

func NewTikTokRefresher(c OAuthClient, tokenURL string, httpClient *http.Client) *TikTokRefresher {
	if tokenURL == "" {
		tokenURL = tiktokBaseURL + "/v2/oauth/token/"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &TikTokRefresher{client: c, tokenURL: tokenURL, httpClient: httpClient}
}

func (r *TikTokRefresher) Refresh(ctx context.Context, g Grant) (*Token, error) {
	if g.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrGrantRevoked)
	}
	data := url.Values{}
	data.Set("client_key", r.client.ClientID)
	data.Set("client_secret", r.client.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", g.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out transfer.TiktokTokenResponse
	if err := doTokenRequest(r.httpClient, req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrGrantRevoked, out.Error, out.ErrorDescription)
	}
	return &Token{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken, ExpiresAt: expiresIn(out.ExpiresIn)}, nil
}

// FacebookRefresher exchanges a long-lived user token for a new one and
// derives page tokens from it.
type FacebookRefresher struct {
	client     OAuthClient
	baseURL    string
	httpClient *http.Client
}

func NewFacebookRefresher(c OAuthClient, baseURL string, httpClient *http.Client) *FacebookRefresher {
	if baseURL == "" {
		baseURL = strings.TrimSuffix(facebook.Endpoint.TokenURL, "/oauth/access_token")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &FacebookRefresher{client: c, baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (r *FacebookRefresher) Refresh(ctx context.Context, g Grant) (*Token, error) {
	if g.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token stored", ErrGrantRevoked)
	}
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {r.client.ClientID},
		"client_secret":     {r.client.ClientSecret},
		"fb_exchange_token": {g.AccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := doTokenRequest(r.httpClient, req, &out); err != nil {
		return nil, err
	}
	return &Token{AccessToken: out.AccessToken, ExpiresAt: expiresIn(out.ExpiresIn)}, nil
}

func (r *FacebookRefresher) RefreshPage(ctx context.Context, accountToken, pageExternalID string) (*Token, error) {
	q := url.Values{"fields": {"access_token"}, "access_token": {accountToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+pageExternalID+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out transfer.FacebookPageToken
	if err := doTokenRequest(r.httpClient, req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: page %s returned no token", ErrGrantRevoked, pageExternalID)
	}
	// page tokens derived from a long-lived user token do not expire
	return &Token{AccessToken: out.AccessToken}, nil
}

// doTokenRequest treats 4xx answers from a token endpoint as a revoked grant.
func doTokenRequest(c *http.Client, req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrGrantRevoked, resp.StatusCode, truncate(string(body), maxErrorBody))
	}
	return json.Unmarshal(body, out)
}

func expiresIn(seconds int) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(time.Duration(seconds) * time.Second)
	return &t
}

// Refreshers maps each platform to the refresher for its accounts.
type Refreshers map[models.Platform]Refresher
