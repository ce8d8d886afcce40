package platform

import (
	"context"
	"time"

	"github.com/maheshrc27/brandcast/internal/models"
)

// CredentialShape tells the credential provider which token an adapter needs.
type CredentialShape string

const (
	AccountCredential CredentialShape = "ACCOUNT"
	PageCredential    CredentialShape = "PAGE"
)

// Credential is a resolved, decrypted bearer token plus the identities it acts for.
type Credential struct {
	AccessToken       string
	AccountExternalID string
	PageExternalID    string
	ExpiresAt         *time.Time
}

type PublishRequest struct {
	PostID     string
	Title      string
	Content    string
	Media      []*models.PostMedia
	Credential Credential
}

type RemoteRef struct {
	ID  string
	URL string
}

// Adapter publishes a post to one platform. Validate must be pure so callers
// can run it before resolving credentials.
type Adapter interface {
	Platform() models.Platform
	CredentialShape() CredentialShape
	Validate(req *PublishRequest) error
	Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error)
}

// Blob is media content loaded for upload-style APIs.
type Blob struct {
	Data     []byte
	MimeType string
	Name     string
}

type MediaFetcher interface {
	Fetch(ctx context.Context, m *models.PostMedia) (*Blob, error)
}
