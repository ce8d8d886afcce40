package platform

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/maheshrc27/brandcast/internal/models"
)

const (
	youTubeMaxTitle       = 100
	youTubeMaxDescription = 5000
)

var youTubeLimits = limits{maxText: youTubeMaxDescription, minMedia: 1, maxMedia: 1, maxVideos: 1, requireBlobs: true}

// YouTube uploads a single video through the Data API.
type YouTube struct {
	opts  options
	media MediaFetcher
}

func NewYouTube(media MediaFetcher, opts ...Option) *YouTube {
	return &YouTube{opts: buildOptions("", opts), media: media}
}

func (y *YouTube) Platform() models.Platform { return models.PlatformYouTube }

func (y *YouTube) CredentialShape() CredentialShape { return AccountCredential }

func (y *YouTube) Validate(req *PublishRequest) error {
	if err := youTubeLimits.check(models.PlatformYouTube, req); err != nil {
		return err
	}
	if req.Media[0].Kind != models.MediaKindVideo {
		return rejectf(models.PlatformYouTube, "a video is required")
	}
	if n := utf8.RuneCountInString(youTubeTitle(req)); n > youTubeMaxTitle {
		return rejectf(models.PlatformYouTube, "title is %d characters, limit is %d", n, youTubeMaxTitle)
	}
	return nil
}

// youTubeTitle falls back to the first line of the description.
func youTubeTitle(req *PublishRequest) string {
	if req.Title != "" {
		return req.Title
	}
	title, _, _ := strings.Cut(req.Content, "\n")
	if utf8.RuneCountInString(title) > youTubeMaxTitle {
		title = string([]rune(title)[:youTubeMaxTitle])
	}
	return title
}

func (y *YouTube) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := y.Validate(req); err != nil {
		return nil, err
	}

	blob, err := y.media.Fetch(ctx, req.Media[0])
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(blob.MimeType, "video/") {
		return nil, rejectf(models.PlatformYouTube, "media type %q is not a video", blob.MimeType)
	}

	if err := y.opts.limiter.Wait(ctx); err != nil {
		return nil, transportError(models.PlatformYouTube, err)
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, y.opts.httpClient)
	client := oauth2.NewClient(httpCtx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: req.Credential.AccessToken}))
	serviceOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if y.opts.baseURL != "" {
		serviceOpts = append(serviceOpts, option.WithEndpoint(y.opts.baseURL))
	}

	service, err := youtube.NewService(ctx, serviceOpts...)
	if err != nil {
		return nil, err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       youTubeTitle(req),
			Description: req.Content,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}

	resp, err := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(bytes.NewReader(blob.Data), googleapi.ContentType(blob.MimeType)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, youTubeError(err)
	}
	return &RemoteRef{ID: resp.Id, URL: "https://www.youtube.com/watch?v=" + resp.Id}, nil
}

func youTubeError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return transportError(models.PlatformYouTube, err)
	}
	pe := statusError(models.PlatformYouTube, gerr.Code, gerr.Message)
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			pe.Kind = Transient
		}
	}
	pe.Err = err
	return pe
}
