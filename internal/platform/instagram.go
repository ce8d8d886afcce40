package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

const instagramBaseURL = "https://graph.instagram.com/v21.0"

var instagramLimits = limits{maxText: 2200, minMedia: 1, maxMedia: 10, maxVideos: 10, allowMixed: true, requireURL: true}

const (
	containerFinished   = "FINISHED"
	containerError      = "ERROR"
	containerExpired    = "EXPIRED"
	containerInProgress = "IN_PROGRESS"
)

// Instagram publishes through the container flow: create, wait, publish.
type Instagram struct {
	api *apiClient
}

func NewInstagram(opts ...Option) *Instagram {
	o := buildOptions(instagramBaseURL, opts)
	return &Instagram{api: newAPIClient(models.PlatformInstagram, o, decodeGraphError)}
}

func (ig *Instagram) Platform() models.Platform { return models.PlatformInstagram }

func (ig *Instagram) CredentialShape() CredentialShape { return AccountCredential }

func (ig *Instagram) Validate(req *PublishRequest) error {
	return instagramLimits.check(models.PlatformInstagram, req)
}

func (ig *Instagram) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := ig.Validate(req); err != nil {
		return nil, err
	}
	user := req.Credential.AccountExternalID
	token := req.Credential.AccessToken

	var containerID string
	if len(req.Media) == 1 {
		params := ig.mediaParams(req.Media[0], false)
		params.Set("caption", req.Content)
		id, err := ig.createContainer(ctx, token, user, params)
		if err != nil {
			return nil, err
		}
		containerID = id
	} else {
		children := make([]string, 0, len(req.Media))
		for _, m := range req.Media {
			id, err := ig.createContainer(ctx, token, user, ig.mediaParams(m, true))
			if err != nil {
				return nil, err
			}
			if err := ig.waitForContainer(ctx, token, id); err != nil {
				return nil, err
			}
			children = append(children, id)
		}
		id, err := ig.createContainer(ctx, token, user, url.Values{
			"media_type": {"CAROUSEL"},
			"children":   {strings.Join(children, ",")},
			"caption":    {req.Content},
		})
		if err != nil {
			return nil, err
		}
		containerID = id
	}

	if err := ig.waitForContainer(ctx, token, containerID); err != nil {
		return nil, err
	}

	var published transfer.GraphID
	if err := ig.form(ctx, token, "/"+user+"/media_publish", url.Values{"creation_id": {containerID}}, &published); err != nil {
		return nil, err
	}

	ref := &RemoteRef{ID: published.ID}
	var link transfer.InstagramPermalink
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, ig.api.url("/"+published.ID+"?fields=permalink"), nil)
	if err == nil {
		// the post exists at this point; a missing permalink is not a failure
		if _, err := ig.api.do(r, token, &link); err == nil {
			ref.URL = link.Permalink
		}
	}
	return ref, nil
}

func (ig *Instagram) mediaParams(m *models.PostMedia, carouselItem bool) url.Values {
	params := url.Values{}
	if m.Kind == models.MediaKindVideo {
		params.Set("video_url", m.URL)
		if carouselItem {
			params.Set("media_type", "VIDEO")
		} else {
			params.Set("media_type", "REELS")
		}
	} else {
		params.Set("image_url", m.URL)
	}
	if carouselItem {
		params.Set("is_carousel_item", "true")
	}
	return params
}

func (ig *Instagram) createContainer(ctx context.Context, token, user string, params url.Values) (string, error) {
	var out transfer.GraphID
	if err := ig.form(ctx, token, "/"+user+"/media", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (ig *Instagram) waitForContainer(ctx context.Context, token, id string) error {
	for attempt := 0; attempt < ig.api.opts.pollAttempts; attempt++ {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, ig.api.url("/"+id+"?fields=status_code,status"), nil)
		if err != nil {
			return err
		}
		var status transfer.InstagramContainerStatus
		if _, err := ig.api.do(r, token, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case containerFinished:
			return nil
		case containerError, containerExpired:
			return rejectf(models.PlatformInstagram, "container %s %s: %s", id, strings.ToLower(status.StatusCode), status.Status)
		}

		if err := sleep(ctx, ig.api.opts.pollInterval); err != nil {
			return transportError(models.PlatformInstagram, err)
		}
	}
	return &PublishError{Kind: Transient, Platform: models.PlatformInstagram,
		Message: "container " + id + " still " + containerInProgress}
}

func (ig *Instagram) form(ctx context.Context, token, path string, params url.Values, out any) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, ig.api.url(path), strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = ig.api.do(r, token, out)
	return err
}
