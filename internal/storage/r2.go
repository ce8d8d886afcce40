package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"

	cfg "github.com/maheshrc27/brandcast/configs"
	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
)

const defaultMaxBytes = 512 << 20

var (
	ErrNoSource      = errors.New("media has neither a storage key nor a url")
	ErrTooLarge      = errors.New("media exceeds size limit")
	ErrKindMismatch  = errors.New("media content does not match its declared kind")
	ErrNoObjectStore = errors.New("object storage is not configured")
)

type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MediaSource loads post media for upload-style platform APIs: stored
// objects from R2, anything else over plain HTTP.
type MediaSource struct {
	objects    objectGetter
	bucket     string
	httpClient *http.Client
	maxBytes   int64
}

// NewR2Client builds an S3 client pointed at Cloudflare R2.
func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(r2.EndpointURL())
		o.UsePathStyle = true
	}), nil
}

// NewMediaSource takes a nil client when no bucket is configured; media
// then has to carry a public url.
func NewMediaSource(client *s3.Client, bucket string, httpClient *http.Client, maxBytes int64) *MediaSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	m := &MediaSource{bucket: bucket, httpClient: httpClient, maxBytes: maxBytes}
	if client != nil {
		m.objects = client
	}
	return m
}

func (m *MediaSource) Fetch(ctx context.Context, media *models.PostMedia) (*platform.Blob, error) {
	var (
		data []byte
		name string
		err  error
	)
	switch {
	case media.StorageKey != "" && m.objects != nil:
		data, err = m.getObject(ctx, media.StorageKey)
		name = path.Base(media.StorageKey)
	case media.URL != "":
		data, err = m.download(ctx, media.URL)
		name = path.Base(media.URL)
	case media.StorageKey != "":
		return nil, ErrNoObjectStore
	default:
		return nil, ErrNoSource
	}
	if err != nil {
		return nil, err
	}

	mime, err := sniff(data, media.Kind)
	if err != nil {
		return nil, fmt.Errorf("media %s: %w", media.ID, err)
	}
	return &platform.Blob{Data: data, MimeType: mime, Name: name}, nil
}

func (m *MediaSource) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := m.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if retryable(err) {
			return nil, fmt.Errorf("get object %s: %w: %w", key, platform.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > m.maxBytes {
		return nil, ErrTooLarge
	}
	return m.readLimited(out.Body)
}

func (m *MediaSource) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if transientStatus(resp.StatusCode) {
			return nil, fmt.Errorf("download media: status %d: %w", resp.StatusCode, platform.ErrUnavailable)
		}
		return nil, fmt.Errorf("download media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > m.maxBytes {
		return nil, ErrTooLarge
	}
	return m.readLimited(resp.Body)
}

func (m *MediaSource) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w: %w", platform.ErrUnavailable, err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooEarly ||
		code == http.StatusTooManyRequests || code >= 500
}

// retryable reports object store errors worth another attempt: throttling,
// 5xx responses and connection failures.
func retryable(err error) bool {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && transientStatus(re.HTTPStatusCode()) {
		return true
	}
	return retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary
}

// sniff reads the MIME type from the content and checks it against the
// kind the post declared.
func sniff(data []byte, kind models.MediaKind) (string, error) {
	t, err := filetype.Match(data)
	if err != nil || t == filetype.Unknown {
		return "", fmt.Errorf("%w: unknown file type", ErrKindMismatch)
	}

	switch kind {
	case models.MediaKindImage:
		if !filetype.IsImage(data) {
			return "", fmt.Errorf("%w: %s is not an image", ErrKindMismatch, t.MIME.Value)
		}
	case models.MediaKindVideo:
		if !filetype.IsVideo(data) {
			return "", fmt.Errorf("%w: %s is not a video", ErrKindMismatch, t.MIME.Value)
		}
	}
	return t.MIME.Value, nil
}
