package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/internal/transfer"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

// storeTimeout bounds the writes that record an attempt. They run detached
// from the caller so a finished platform call is always recorded.
const storeTimeout = 10 * time.Second

type DispatchConfig struct {
	Workers        int
	RunDeadline    time.Duration
	AdapterTimeout time.Duration
	ClaimLease     time.Duration

	// RetryMaxAttempts of 0 leaves failed posts for a manual retry.
	RetryMaxAttempts int
	RetryBackoff     time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 30 * time.Second
	}
	if c.ClaimLease < c.AdapterTimeout {
		c.ClaimLease = 2 * c.AdapterTimeout
	}
	return c
}

// retryDelay doubles the backoff for each attempt already made.
func (c DispatchConfig) retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return c.RetryBackoff * time.Duration(1<<(attempts-1))
}

type Dispatcher interface {
	RunOnce(ctx context.Context, now time.Time) (*transfer.RunSummary, error)
}

type dispatchService struct {
	posts       PostService
	postRepo    repository.PostRepository
	media       repository.PostMediaRepository
	history     repository.PostingHistoryRepository
	adapters    *platform.Registry
	credentials CredentialService
	rollup      RollupService
	notifier    NotificationService
	clock       Clock
	logger      *slog.Logger
	cfg         DispatchConfig
}

func NewDispatchService(
	posts PostService,
	postRepo repository.PostRepository,
	media repository.PostMediaRepository,
	history repository.PostingHistoryRepository,
	adapters *platform.Registry,
	credentials CredentialService,
	rollup RollupService,
	notifier NotificationService,
	clock Clock,
	logger *slog.Logger,
	cfg DispatchConfig) Dispatcher {
	return &dispatchService{
		posts:       posts,
		postRepo:    postRepo,
		media:       media,
		history:     history,
		adapters:    adapters,
		credentials: credentials,
		rollup:      rollup,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeFailed
	outcomeSkipped
)

type attempt struct {
	outcome     outcome
	post        *models.Post
	ref         *platform.RemoteRef
	kind        models.FailureKind
	reason      string
	rescheduled bool
}

// RunOnce publishes every post due at now. Posts are processed independently
// on a bounded pool; one post failing never affects another. An error is
// returned only when the store itself fails, together with the summary of
// what was done before that.
func (d *dispatchService) RunOnce(ctx context.Context, now time.Time) (*transfer.RunSummary, error) {
	now = now.UTC()
	summary := &transfer.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Results: transfer.RunResults{
			Published: []transfer.PublishedResult{},
			Failed:    []transfer.FailedResult{},
		},
	}
	logger := d.logger.With("run_id", summary.RunID)

	due, err := d.posts.FindDuePosts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find due posts: %w", err)
	}

	// Posts not started before the deadline are left for the next run.
	var deadline <-chan time.Time
	if d.cfg.RunDeadline > 0 {
		t := time.NewTimer(d.cfg.RunDeadline)
		defer t.Stop()
		deadline = t.C
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

launch:
	for _, post := range due {
		select {
		case <-deadline:
			mu.Lock()
			unstarted := len(due) - summary.Processed
			mu.Unlock()
			logger.Warn("run deadline reached", "unstarted", unstarted)
			break launch
		case <-gctx.Done():
			break launch
		default:
		}

		mu.Lock()
		summary.Processed++
		mu.Unlock()

		// A store failure cancels gctx. That stops launches, but posts
		// already talking to a platform run on ctx and finish.
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				summary.Processed--
				mu.Unlock()
				return nil
			}
			a, err := d.process(ctx, logger, summary.RunID, now, post)
			if err != nil {
				return fmt.Errorf("post %s: %w", post.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			d.record(summary, a)
			return nil
		})
	}

	err = g.Wait()
	summary.FinishedAt = d.clock.Now()
	logger.Info("dispatch run finished",
		"processed", summary.Processed,
		"published", summary.SuccessCount,
		"failed", summary.FailedCount,
		"skipped", summary.SkippedCount)
	if err != nil {
		logger.Error("dispatch run aborted", "error", err)
		return summary, err
	}
	return summary, nil
}

func (d *dispatchService) record(summary *transfer.RunSummary, a *attempt) {
	switch a.outcome {
	case outcomePublished:
		summary.SuccessCount++
		r := transfer.PublishedResult{PostID: a.post.ID, Platform: string(a.post.Platform)}
		if a.ref != nil {
			r.RemoteID = a.ref.ID
		}
		summary.Results.Published = append(summary.Results.Published, r)
	case outcomeFailed:
		summary.FailedCount++
		summary.Results.Failed = append(summary.Results.Failed, transfer.FailedResult{
			PostID:      a.post.ID,
			Platform:    string(a.post.Platform),
			Kind:        string(a.kind),
			Error:       a.reason,
			Rescheduled: a.rescheduled,
		})
	case outcomeSkipped:
		summary.SkippedCount++
	}
}

func (d *dispatchService) process(ctx context.Context, logger *slog.Logger, runID string, now time.Time, post *models.Post) (*attempt, error) {
	logger = logger.With("post_id", post.ID, "platform", post.Platform)

	claimed, err := d.postRepo.Claim(ctx, post.ID, runID, now, now.Add(d.cfg.ClaimLease))
	if err != nil {
		return nil, err
	}
	if !claimed {
		logger.Info("post claimed by another run")
		return &attempt{outcome: outcomeSkipped, post: post}, nil
	}
	post.Attempts++

	ref, err := d.publish(ctx, post)
	if err != nil {
		if !isAttemptFailure(err) {
			// store trouble; the claim lease hands the post to a later run
			return nil, err
		}
		return d.fail(ctx, logger, runID, now, post, err)
	}
	if ref == nil {
		ref = &platform.RemoteRef{}
	}
	return d.succeed(ctx, logger, runID, now, post, ref)
}

// adapterError marks errors that came back from the platform call itself,
// whatever their type.
type adapterError struct{ err error }

func (e *adapterError) Error() string { return e.err.Error() }
func (e *adapterError) Unwrap() error { return e.err }

// isAttemptFailure separates failures of this post from failures of the run.
func isAttemptFailure(err error) bool {
	var (
		ae   *adapterError
		cerr *CredentialError
		perr *platform.PublishError
	)
	return errors.As(err, &ae) || errors.As(err, &cerr) || errors.As(err, &perr)
}

// publish validates before resolving credentials so deterministic
// rejections never trigger a token refresh.
func (d *dispatchService) publish(ctx context.Context, post *models.Post) (*platform.RemoteRef, error) {
	adapter, err := d.adapters.Get(post.Platform)
	if err != nil {
		return nil, err
	}

	media, err := d.media.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	req := &platform.PublishRequest{
		PostID:  post.ID,
		Title:   post.Title,
		Content: post.Content,
		Media:   media,
	}
	if err := adapter.Validate(req); err != nil {
		return nil, err
	}

	cred, err := d.credentials.Resolve(ctx, post.SocialAccountID, post.SocialAccountPageID, adapter.CredentialShape())
	if err != nil {
		return nil, err
	}
	req.Credential = *cred

	actx, cancel := context.WithTimeout(ctx, d.cfg.AdapterTimeout)
	defer cancel()
	ref, err := adapter.Publish(actx, req)
	if err != nil {
		return nil, &adapterError{err: err}
	}
	return ref, nil
}

func (d *dispatchService) succeed(ctx context.Context, logger *slog.Logger, runID string, now time.Time,
	post *models.Post, ref *platform.RemoteRef) (*attempt, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	err := d.posts.MarkPublished(sctx, post.ID, now, ref)
	if errors.Is(err, ErrAlreadyTransitioned) {
		logger.Warn("post transitioned concurrently after publish", "error", err, "remote_id", ref.ID)
		d.writeHistory(sctx, logger, runID, post, models.AttemptConflict, "", err.Error(), ref.ID)
		return &attempt{outcome: outcomeSkipped, post: post}, nil
	}
	if err != nil {
		return nil, err
	}

	post.Status = models.PostStatusPublished
	post.PublishedAt = &now
	post.RemoteID, post.RemoteURL = ref.ID, ref.URL
	logger.Info("post published", "remote_id", ref.ID)

	d.writeHistory(sctx, logger, runID, post, models.AttemptPublished, "", "", ref.ID)
	if err := d.notifier.PostPublished(sctx, post); err != nil {
		logger.Error("failed to record publish notification", "error", err)
	}
	if _, err := d.rollup.Rollup(sctx, post.PostGroupID); err != nil {
		return nil, fmt.Errorf("rollup: %w", err)
	}
	return &attempt{outcome: outcomePublished, post: post, ref: ref}, nil
}

// failureKind maps an attempt error onto what gets stored on the post.
func failureKind(err error) models.FailureKind {
	var cerr *CredentialError
	if errors.As(err, &cerr) {
		if cerr.Kind == CredentialExpired {
			return models.FailureExpired
		}
		return models.FailureReauthRequired
	}
	switch platform.KindOf(err) {
	case platform.Transient:
		return models.FailureTransient
	case platform.Unauthorized:
		return models.FailureReauthRequired
	default:
		return models.FailureRejected
	}
}

func retriable(kind models.FailureKind) bool {
	return kind == models.FailureTransient || kind == models.FailureExpired
}

func (d *dispatchService) fail(ctx context.Context, logger *slog.Logger, runID string, now time.Time,
	post *models.Post, cause error) (*attempt, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	kind := failureKind(cause)
	reason := strings.ToValidUTF8(cause.Error(), "\uFFFD")

	if platform.KindOf(cause) == platform.Unauthorized {
		if err := d.credentials.MarkReauthRequired(sctx, post.SocialAccountID, cause); err != nil {
			return nil, err
		}
	}

	err := d.posts.MarkFailed(sctx, post.ID, kind, reason)
	if errors.Is(err, ErrAlreadyTransitioned) {
		logger.Warn("post transitioned concurrently", "error", err)
		d.writeHistory(sctx, logger, runID, post, models.AttemptConflict, string(kind), reason, "")
		return &attempt{outcome: outcomeSkipped, post: post}, nil
	}
	if err != nil {
		return nil, err
	}
	post.Status = models.PostStatusFailed
	post.FailureKind, post.FailureReason = kind, reason
	logger.Warn("post failed", "kind", kind, "attempts", post.Attempts, "error", cause)
	d.writeHistory(sctx, logger, runID, post, models.AttemptFailed, string(kind), reason, "")

	a := &attempt{outcome: outcomeFailed, post: post, kind: kind, reason: reason}
	if retriable(kind) && post.Attempts < d.cfg.RetryMaxAttempts {
		next := now.Add(d.cfg.retryDelay(post.Attempts))
		ok, err := d.postRepo.Schedule(sctx, nil, post.ID, next, now)
		if err != nil {
			return nil, err
		}
		if ok {
			a.rescheduled = true
			post.Status = models.PostStatusScheduled
			post.ScheduledAt = &next
			logger.Info("post rescheduled", "scheduled_at", next)
		}
	}

	if !a.rescheduled {
		if err := d.notifier.PostFailed(sctx, post, kind, reason); err != nil {
			logger.Error("failed to record failure notification", "error", err)
		}
	}
	if _, err := d.rollup.Rollup(sctx, post.PostGroupID); err != nil {
		return nil, fmt.Errorf("rollup: %w", err)
	}
	return a, nil
}

func (d *dispatchService) writeHistory(ctx context.Context, logger *slog.Logger, runID string, post *models.Post,
	outcome models.AttemptOutcome, kind, message, remoteID string) {
	err := d.history.Create(ctx, &models.PostingHistory{
		ID:           utils.NewID(),
		PostID:       post.ID,
		RunID:        runID,
		AccountID:    post.SocialAccountID,
		Outcome:      outcome,
		ErrorKind:    kind,
		ErrorMessage: message,
		RemoteID:     remoteID,
		CreatedAt:    d.clock.Now(),
	})
	if err != nil {
		logger.Error("failed to write posting history", "error", err)
	}
}
