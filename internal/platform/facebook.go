package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

const facebookBaseURL = "https://graph.facebook.com/v21.0"

var facebookLimits = limits{maxText: 63206, maxMedia: 10, maxVideos: 1, requireURL: true}

// Facebook publishes to a page with the page-scoped token.
type Facebook struct {
	api *apiClient
}

func NewFacebook(opts ...Option) *Facebook {
	o := buildOptions(facebookBaseURL, opts)
	return &Facebook{api: newAPIClient(models.PlatformFacebook, o, decodeGraphError)}
}

func (f *Facebook) Platform() models.Platform { return models.PlatformFacebook }

func (f *Facebook) CredentialShape() CredentialShape { return PageCredential }

func (f *Facebook) Validate(req *PublishRequest) error {
	if err := facebookLimits.check(models.PlatformFacebook, req); err != nil {
		return err
	}
	if len(req.Media) > 1 {
		for _, m := range req.Media {
			if m.Kind == models.MediaKindVideo {
				return rejectf(models.PlatformFacebook, "a video must be posted on its own")
			}
		}
	}
	return nil
}

func (f *Facebook) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := f.Validate(req); err != nil {
		return nil, err
	}
	page := req.Credential.PageExternalID
	if page == "" {
		return nil, rejectf(models.PlatformFacebook, "post has no target page")
	}
	token := req.Credential.AccessToken

	var (
		id  string
		err error
	)
	switch {
	case len(req.Media) == 1 && req.Media[0].Kind == models.MediaKindVideo:
		id, err = f.post(ctx, token, "/"+page+"/videos", url.Values{
			"file_url":    {req.Media[0].URL},
			"description": {req.Content},
		})
	case len(req.Media) == 1:
		id, err = f.post(ctx, token, "/"+page+"/photos", url.Values{
			"url":     {req.Media[0].URL},
			"caption": {req.Content},
		})
	default:
		form := url.Values{"message": {req.Content}}
		for i, m := range req.Media {
			photoID, err := f.post(ctx, token, "/"+page+"/photos", url.Values{
				"url":       {m.URL},
				"published": {"false"},
			})
			if err != nil {
				return nil, err
			}
			form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, photoID))
		}
		id, err = f.post(ctx, token, "/"+page+"/feed", form)
	}
	if err != nil {
		return nil, err
	}
	return &RemoteRef{ID: id, URL: "https://www.facebook.com/" + id}, nil
}

func (f *Facebook) post(ctx context.Context, token, path string, form url.Values) (string, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, f.api.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		transfer.GraphID
		PostID string `json:"post_id"`
	}
	if _, err := f.api.do(r, token, &out); err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}
