package platform

import (
	"unicode/utf8"

	"github.com/maheshrc27/brandcast/internal/models"
)

// limits describes what a platform accepts for one post.
type limits struct {
	maxText      int
	requireText  bool
	minMedia     int
	maxMedia     int
	maxVideos    int
	allowMixed   bool
	requireURL   bool
	requireBlobs bool
}

func (l limits) check(p models.Platform, req *PublishRequest) error {
	n := utf8.RuneCountInString(req.Content)
	if l.maxText > 0 && n > l.maxText {
		return rejectf(p, "text is %d characters, limit is %d", n, l.maxText)
	}
	if n == 0 && (l.requireText || len(req.Media) == 0) {
		return rejectf(p, "post has no text")
	}
	if len(req.Media) < l.minMedia {
		return rejectf(p, "at least %d media item(s) required", l.minMedia)
	}
	if len(req.Media) > l.maxMedia {
		return rejectf(p, "%d media items, limit is %d", len(req.Media), l.maxMedia)
	}

	var images, videos int
	for i, m := range req.Media {
		switch m.Kind {
		case models.MediaKindImage:
			images++
		case models.MediaKindVideo:
			videos++
		default:
			return rejectf(p, "media %d has unsupported kind %q", i, m.Kind)
		}
		if l.requireURL && m.URL == "" {
			return rejectf(p, "media %d has no public url", i)
		}
		if l.requireBlobs && m.StorageKey == "" && m.URL == "" {
			return rejectf(p, "media %d has no source", i)
		}
	}
	if videos > l.maxVideos {
		return rejectf(p, "%d videos, limit is %d", videos, l.maxVideos)
	}
	if !l.allowMixed && images > 0 && videos > 0 {
		return rejectf(p, "images and videos cannot be mixed")
	}
	return nil
}
