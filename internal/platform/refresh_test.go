package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth2RefresherRotatesToken(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	r := NewLinkedInRefresher(OAuthClient{ClientID: "id", ClientSecret: "secret"}, srv.URL, nil)
	before := time.Now().UTC()
	tok, err := r.Refresh(context.Background(), Grant{AccessToken: "old", RefreshToken: "refresh-1"})
	require.NoError(t, err)

	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.After(before.Add(50*time.Minute)))
	assert.Equal(t, []string{"refresh_token"}, form["grant_type"])
	assert.Equal(t, []string{"refresh-1"}, form["refresh_token"])
}

func TestOAuth2RefresherInvalidGrant(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"token revoked"}`)

	r := NewGoogleRefresher(OAuthClient{ClientID: "id"}, srv.URL, nil)
	_, err := r.Refresh(context.Background(), Grant{RefreshToken: "r"})
	assert.ErrorIs(t, err, ErrGrantRevoked)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestOAuth2RefresherServerErrorIsRetryable(t *testing.T) {
	srv := tokenServer(t, http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`)

	r := NewTwitterRefresher(OAuthClient{ClientID: "id"}, srv.URL, nil)
	_, err := r.Refresh(context.Background(), Grant{RefreshToken: "r"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGrantRevoked)
}

func TestRefresherWithoutRefreshToken(t *testing.T) {
	_, err := NewTwitterRefresher(OAuthClient{}, "http://unused", nil).Refresh(context.Background(), Grant{AccessToken: "a"})
	assert.ErrorIs(t, err, ErrGrantRevoked)

	_, err = NewTikTokRefresher(OAuthClient{}, "http://unused", nil).Refresh(context.Background(), Grant{})
	assert.ErrorIs(t, err, ErrGrantRevoked)
}

func TestInstagramRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh_access_token", r.URL.Path)
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "long-lived", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"access_token":"extended","token_type":"bearer","expires_in":5183944}`))
	}))
	defer srv.Close()

	tok, err := NewInstagramRefresher(srv.URL, nil).Refresh(context.Background(), Grant{AccessToken: "long-lived"})
	require.NoError(t, err)
	assert.Equal(t, "extended", tok.AccessToken)
	require.NotNil(t, tok.ExpiresAt)
	assert.Empty(t, tok.RefreshToken)
}

func TestTikTokRefresherBodyError(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"error":"invalid_grant","error_description":"Refresh token is invalid or expired."}`)

	_, err := NewTikTokRefresher(OAuthClient{ClientID: "key"}, srv.URL, nil).Refresh(context.Background(), Grant{RefreshToken: "r"})
	assert.ErrorIs(t, err, ErrGrantRevoked)
}

func TestFacebookRefreshPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page-1", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"access_token":"page-token","id":"page-1"}`))
	}))
	defer srv.Close()

	fb := NewFacebookRefresher(OAuthClient{}, srv.URL, nil)
	var pr PageRefresher = fb
	tok, err := pr.RefreshPage(context.Background(), "user-token", "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-token", tok.AccessToken)
	assert.Nil(t, tok.ExpiresAt)
}

func TestFacebookRefreshExpiredUserToken(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":{"message":"Session has expired","code":190}}`)

	_, err := NewFacebookRefresher(OAuthClient{}, srv.URL, nil).Refresh(context.Background(), Grant{AccessToken: "old"})
	assert.ErrorIs(t, err, ErrGrantRevoked)
}
