package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/maheshrc27/brandcast/internal/models"
)

const twitterBaseURL = "https://api.x.com"

var twitterLimits = limits{maxText: 280, maxMedia: 4, maxVideos: 0, requireBlobs: true}

var twitterImageTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
}

// Twitter publishes through the X API v2 with an OAuth 2.0 user token.
type Twitter struct {
	api   *apiClient
	media MediaFetcher
}

func NewTwitter(media MediaFetcher, opts ...Option) *Twitter {
	o := buildOptions(twitterBaseURL, opts)
	return &Twitter{api: newAPIClient(models.PlatformTwitter, o, decodeTwitterError), media: media}
}

func (t *Twitter) Platform() models.Platform { return models.PlatformTwitter }

func (t *Twitter) CredentialShape() CredentialShape { return AccountCredential }

func (t *Twitter) Validate(req *PublishRequest) error {
	return twitterLimits.check(models.PlatformTwitter, req)
}

func (t *Twitter) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := t.Validate(req); err != nil {
		return nil, err
	}

	mediaIDs := make([]string, 0, len(req.Media))
	for _, m := range req.Media {
		id, err := t.upload(ctx, req.Credential.AccessToken, m)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, id)
	}

	body := map[string]any{"text": req.Content}
	if len(mediaIDs) > 0 {
		body["media"] = map[string]any{"media_ids": mediaIDs}
	}

	r, err := t.api.newJSONRequest(ctx, http.MethodPost, "/2/tweets", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := t.api.do(r, req.Credential.AccessToken, &out); err != nil {
		return nil, err
	}
	return &RemoteRef{ID: out.Data.ID, URL: "https://x.com/i/web/status/" + out.Data.ID}, nil
}

func (t *Twitter) upload(ctx context.Context, token string, m *models.PostMedia) (string, error) {
	blob, err := t.media.Fetch(ctx, m)
	if err != nil {
		return "", err
	}
	if !twitterImageTypes[blob.MimeType] {
		return "", rejectf(models.PlatformTwitter, "image type %q not accepted", blob.MimeType)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	category := "tweet_image"
	if blob.MimeType == "image/gif" {
		category = "tweet_gif"
	}
	if err := w.WriteField("media_category", category); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("media", blob.Name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.api.url("/2/media/upload"), &buf)
	if err != nil {
		return "", err
	}
	r.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := t.api.do(r, token, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

func decodeTwitterError(status int, body []byte) *PublishError {
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &e) != nil {
		return nil
	}
	msgs := []string{}
	if e.Detail != "" {
		msgs = append(msgs, e.Detail)
	}
	for _, x := range e.Errors {
		if x.Message != "" {
			msgs = append(msgs, x.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return statusError(models.PlatformTwitter, status, strings.Join(msgs, "; "))
}
