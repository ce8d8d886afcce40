package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"unicode/utf8"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

const (
	tiktokBaseURL     = "https://open.tiktokapis.com"
	tiktokPrivacy     = "PUBLIC_TO_EVERYONE"
	tiktokPhotoTitle  = 90
	tiktokMaxPhotos   = 35
	tiktokMaxCaption  = 2200
	tiktokPhotoDetail = 4000
)

var tiktokLimits = limits{maxText: tiktokPhotoDetail, minMedia: 1, maxMedia: tiktokMaxPhotos, maxVideos: 1, requireURL: true}

// TikTok uses direct post with PULL_FROM_URL, so media URLs must be on a verified domain.
type TikTok struct {
	api *apiClient
}

func NewTikTok(opts ...Option) *TikTok {
	o := buildOptions(tiktokBaseURL, opts)
	return &TikTok{api: newAPIClient(models.PlatformTikTok, o, decodeTikTokError)}
}

func (t *TikTok) Platform() models.Platform { return models.PlatformTikTok }

func (t *TikTok) CredentialShape() CredentialShape { return AccountCredential }

func (t *TikTok) Validate(req *PublishRequest) error {
	if err := tiktokLimits.check(models.PlatformTikTok, req); err != nil {
		return err
	}
	if req.Media[0].Kind == models.MediaKindVideo {
		if len(req.Media) > 1 {
			return rejectf(models.PlatformTikTok, "a video must be posted on its own")
		}
		if n := utf8.RuneCountInString(req.Content); n > tiktokMaxCaption {
			return rejectf(models.PlatformTikTok, "caption is %d characters, limit is %d", n, tiktokMaxCaption)
		}
	}
	if n := utf8.RuneCountInString(req.Title); n > tiktokPhotoTitle {
		return rejectf(models.PlatformTikTok, "title is %d characters, limit is %d", n, tiktokPhotoTitle)
	}
	return nil
}

func (t *TikTok) Publish(ctx context.Context, req *PublishRequest) (*RemoteRef, error) {
	if err := t.Validate(req); err != nil {
		return nil, err
	}
	token := req.Credential.AccessToken

	creator, err := t.creatorInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(creator.PrivacyLevelOptions, tiktokPrivacy) {
		return nil, rejectf(models.PlatformTikTok, "creator %s cannot post publicly", creator.CreatorUsername)
	}

	var (
		path string
		body any
	)
	if req.Media[0].Kind == models.MediaKindVideo {
		path = "/v2/post/publish/video/init/"
		body = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 req.Content,
				PrivacyLevel:          tiktokPrivacy,
				DisableDuet:           creator.DuetDisabled,
				DisableComment:        creator.CommentDisabled,
				DisableStitch:         creator.StitchDisabled,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{Source: "PULL_FROM_URL", VideoURL: req.Media[0].URL},
		}
	} else {
		photos := make([]string, 0, len(req.Media))
		for _, m := range req.Media {
			photos = append(photos, m.URL)
		}
		path = "/v2/post/publish/content/init/"
		body = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:          req.Title,
				Description:    req.Content,
				PrivacyLevel:   tiktokPrivacy,
				DisableComment: creator.CommentDisabled,
				AutoAddMusic:   true,
			},
			SourceInfo: transfer.PhotoSourceInfo{Source: "PULL_FROM_URL", PhotoImages: photos},
			PostMode:   "DIRECT_POST",
			MediaType:  "PHOTO",
		}
	}

	r, err := t.api.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json; charset=UTF-8")

	var out transfer.TikTokPublishResponse
	if _, err := t.api.do(r, token, &out); err != nil {
		return nil, err
	}
	if pe := tiktokBodyError(out.Error); pe != nil {
		return nil, pe
	}
	return &RemoteRef{ID: out.Data.PublishID}, nil
}

func (t *TikTok) creatorInfo(ctx context.Context, token string) (*transfer.TiktokCreatorInfo, error) {
	r, err := t.api.newJSONRequest(ctx, http.MethodPost, "/v2/post/publish/creator_info/query/", nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json; charset=UTF-8")

	var out transfer.TikTokCreatorInfoResponse
	if _, err := t.api.do(r, token, &out); err != nil {
		return nil, err
	}
	if pe := tiktokBodyError(out.Error); pe != nil {
		return nil, pe
	}
	return &out.Data, nil
}

// tiktokBodyError inspects the error object TikTok returns even on HTTP 200.
func tiktokBodyError(e transfer.TiktokError) *PublishError {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	pe := &PublishError{Kind: Rejected, Platform: models.PlatformTikTok, Message: e.Code + ": " + e.Message}
	switch e.Code {
	case "access_token_invalid", "scope_not_authorized", "token_not_authorized_for_specified_user":
		pe.Kind = Unauthorized
	case "rate_limit_exceeded", "internal_error":
		pe.Kind = Transient
	}
	return pe
}

func decodeTikTokError(status int, body []byte) *PublishError {
	var out struct {
		Error transfer.TiktokError `json:"error"`
	}
	if json.Unmarshal(body, &out) != nil {
		return nil
	}
	pe := tiktokBodyError(out.Error)
	if pe != nil && pe.Kind == Rejected && status >= 500 {
		pe.Kind = Transient
	}
	return pe
}
