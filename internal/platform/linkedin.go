package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/maheshrc27/brandcast/internal/models"
)

const (
	linkedInBaseURL = "https://api.linkedin.com"
	linkedInVersion = "202401"
)

var linkedInLimits = limits{maxText: 3000, maxMedia: 20, maxVideos: 0, requireBlobs: true}

var linkedInImageTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true}

// LinkedIn posts as a member, or as an organization when the post targets a page.
type LinkedIn struct {
	api   *apiClient
	media MediaFetcher
}

func NewLinkedIn(media MediaFetcher, opts ...Option) *LinkedIn {
	o := buildOptions(linkedInBaseURL, opts)
	return &LinkedIn{api: newAPIClient(models.PlatformLinkedIn, o, decodeLinkedInError), media: media}
}

func (l *LinkedIn) Platform() models.Platform { return models.PlatformLinkedIn }

func (l *LinkedIn) CredentialShape() CredentialShape { return AccountCredential }

func (l *LinkedIn) Validate(req *PublishRequest) error {
	return linkedInLimits.check(models.PlatformLinkedIn, req)
}

type linkedInPost struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              linkedInDistribution `json:"distribution"`
	Content                   *linkedInContent     `json:"content,omitempty"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
}

type linkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type linkedInMedia struct {
	ID string `json:"id"`
}

type linkedInContent struct {
	Media      *linkedInMedia `json:"media,omitempty"`
	MultiImage *struct {
		Images []linkedInMedia `json:"images"`
	} `json:"multiImage,omitempty"`
}

func (l *LinkedIn) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := l.Validate(req); err != nil {
		return nil, err
	}

	author := "urn:li:person:" + req.Credential.AccountExternalID
	if req.Credential.PageExternalID != "" {
		author = "urn:li:organization:" + req.Credential.PageExternalID
	}

	images := make([]linkedInMedia, 0, len(req.Media))
	for _, m := range req.Media {
		urn, err := l.uploadImage(ctx, req.Credential.AccessToken, author, m)
		if err != nil {
			return nil, err
		}
		images = append(images, linkedInMedia{ID: urn})
	}

	post := linkedInPost{
		Author:     author,
		Commentary: escapeLinkedIn(req.Content),
		Visibility: "PUBLIC",
		Distribution: linkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	switch len(images) {
	case 0:
	case 1:
		post.Content = &linkedInContent{Media: &images[0]}
	default:
		post.Content = &linkedInContent{MultiImage: &struct {
			Images []linkedInMedia `json:"images"`
		}{Images: images}}
	}

	r, err := l.api.newJSONRequest(ctx, http.MethodPost, "/rest/posts", post)
	if err != nil {
		return nil, err
	}
	l.versionHeaders(r)

	header, err := l.api.do(r, req.Credential.AccessToken, nil)
	if err != nil {
		return nil, err
	}

	id := header.Get("x-restli-id")
	if id == "" {
		return nil, &PublishError{Kind: Transient, Platform: models.PlatformLinkedIn, Message: "post created without x-restli-id"}
	}
	return &RemoteRef{ID: id, URL: "https://www.linkedin.com/feed/update/" + id}, nil
}

func (l *LinkedIn) uploadImage(ctx context.Context, token, owner string, m *models.PostMedia) (string, error) {
	blob, err := l.media.Fetch(ctx, m)
	if err != nil {
		return "", err
	}
	if !linkedInImageTypes[blob.MimeType] {
		return "", rejectf(models.PlatformLinkedIn, "image type %q not accepted", blob.MimeType)
	}

	var init struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	body := map[string]any{"initializeUploadRequest": map[string]string{"owner": owner}}
	r, err := l.api.newJSONRequest(ctx, http.MethodPost, "/rest/images?action=initializeUpload", body)
	if err != nil {
		return "", err
	}
	l.versionHeaders(r)
	if _, err := l.api.do(r, token, &init); err != nil {
		return "", err
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, init.Value.UploadURL, bytes.NewReader(blob.Data))
	if err != nil {
		return "", err
	}
	put.Header.Set("Content-Type", blob.MimeType)
	if _, err := l.api.do(put, token, nil); err != nil {
		return "", err
	}
	return init.Value.Image, nil
}

func (l *LinkedIn) versionHeaders(r *http.Request) {
	r.Header.Set("LinkedIn-Version", linkedInVersion)
	r.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

// escapeLinkedIn escapes the reserved characters of LinkedIn's little text format.
func escapeLinkedIn(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '|', '{', '}', '@', '[', ']', '(', ')', '<', '>', '#', '*', '_', '~':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeLinkedInError(status int, body []byte) *PublishError {
	var e struct {
		Message     string `json:"message"`
		ServiceCode int    `json:"serviceErrorCode"`
		Code        string `json:"code"`
	}
	if json.Unmarshal(body, &e) != nil || e.Message == "" {
		return nil
	}
	pe := statusError(models.PlatformLinkedIn, status, e.Message)
	if e.ServiceCode == 65601 || e.Code == "REVOKED_ACCESS_TOKEN" {
		pe.Kind = Unauthorized
	}
	if e.Code != "" {
		pe.Message = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return pe
}
