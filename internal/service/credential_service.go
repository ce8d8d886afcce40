package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/maheshrc27/brandcast/internal/lock"
	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/repository"
)

const (
	refreshTimeout = 30 * time.Second
	refreshLockTTL = time.Minute
)

type CredentialConfig struct {
	// Buffer is how close to expiry a token may be and still be handed out.
	Buffer             time.Duration
	RefreshWindow      time.Duration
	RefreshConcurrency int
}

type RefreshReport struct {
	Scanned      int `json:"scanned"`
	Refreshed    int `json:"refreshed"`
	Disconnected int `json:"disconnected"`
	Failed       int `json:"failed"`
}

type CredentialService interface {
	// Resolve returns a usable token for the account, or for the page when
	// shape is PAGE. Credential problems come back as *CredentialError; any
	// other error means the store failed.
	Resolve(ctx context.Context, accountID, pageID string, shape platform.CredentialShape) (*platform.Credential, error)
	MarkReauthRequired(ctx context.Context, accountID string, cause error) error
	RefreshExpiring(ctx context.Context) (*RefreshReport, error)
}

type tokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

type credentialService struct {
	accounts   repository.SocialAccountRepository
	cipher     tokenCipher
	refreshers platform.Refreshers
	locker     lock.Locker
	notifier   NotificationService
	clock      Clock
	logger     *slog.Logger
	cfg        CredentialConfig
	flight     singleflight.Group
}

func NewCredentialService(
	accounts repository.SocialAccountRepository,
	cipher tokenCipher,
	refreshers platform.Refreshers,
	locker lock.Locker,
	notifier NotificationService,
	clock Clock,
	logger *slog.Logger,
	cfg CredentialConfig) CredentialService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.RefreshConcurrency < 1 {
		cfg.RefreshConcurrency = 10
	}
	return &credentialService{
		accounts:   accounts,
		cipher:     cipher,
		refreshers: refreshers,
		locker:     locker,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

func fresh(expiresAt *time.Time, until time.Time) bool {
	return expiresAt == nil || expiresAt.After(until)
}

func reauth(accountID string, err error) *CredentialError {
	return &CredentialError{Kind: CredentialReauthRequired, AccountID: accountID, Err: err}
}

func (s *credentialService) Resolve(ctx context.Context, accountID, pageID string, shape platform.CredentialShape) (*platform.Credential, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, reauth(accountID, ErrAccountNotFound)
	}
	if !account.IsConnected {
		return nil, reauth(accountID, ErrAccountDisconnected)
	}

	until := s.clock.Now().Add(s.cfg.Buffer)
	accountToken, expiresAt, err := s.accountToken(ctx, account, until)
	if err != nil {
		return nil, err
	}

	cred := &platform.Credential{
		AccessToken:       accountToken,
		AccountExternalID: account.ExternalID,
		ExpiresAt:         expiresAt,
	}
	if pageID == "" {
		if shape == platform.PageCredential {
			return nil, reauth(accountID, fmt.Errorf("%w: post targets no page", ErrPageNotFound))
		}
		return cred, nil
	}

	page, err := s.accounts.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page == nil || page.SocialAccountID != account.ID {
		return nil, reauth(accountID, fmt.Errorf("%w: %s", ErrPageNotFound, pageID))
	}
	cred.PageExternalID = page.ExternalID
	if shape != platform.PageCredential {
		// member token acting for the page, as LinkedIn organizations do
		return cred, nil
	}

	pageToken, pageExpiry, err := s.pageToken(ctx, account, page, accountToken, until)
	if err != nil {
		return nil, err
	}
	cred.AccessToken = pageToken
	cred.ExpiresAt = pageExpiry
	return cred, nil
}

// accountToken returns the decrypted account token, refreshing it first when
// it expires before until.
func (s *credentialService) accountToken(ctx context.Context, account *models.SocialAccount, until time.Time) (string, *time.Time, error) {
	if fresh(account.TokenExpiresAt, until) {
		token, err := s.cipher.Decrypt(account.AccessToken)
		if err != nil {
			return "", nil, reauth(account.ID, fmt.Errorf("decrypt access token: %w", err))
		}
		return token, account.TokenExpiresAt, nil
	}

	tok, err := s.refresh(ctx, account.ID, until)
	if err != nil {
		return "", nil, err
	}
	return tok.AccessToken, tok.ExpiresAt, nil
}

func (s *credentialService) pageToken(ctx context.Context, account *models.SocialAccount, page *models.SocialAccountPage,
	accountToken string, until time.Time) (string, *time.Time, error) {
	if fresh(page.TokenExpiresAt, until) {
		token, err := s.cipher.Decrypt(page.AccessToken)
		if err != nil {
			return "", nil, reauth(account.ID, fmt.Errorf("decrypt page token: %w", err))
		}
		return token, page.TokenExpiresAt, nil
	}

	pr, ok := s.refreshers[account.Platform].(platform.PageRefresher)
	if !ok {
		return "", nil, reauth(account.ID, fmt.Errorf("page %s token expired and cannot be re-derived", page.ID))
	}

	// Page tokens derive from the account grant, so they share its lock.
	v, err, _ := s.flight.Do("page:"+page.ID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		unlock, err := s.locker.Lock(ctx, "account:"+account.ID, refreshLockTTL)
		if err != nil {
			return nil, &CredentialError{Kind: CredentialExpired, AccountID: account.ID, Err: err}
		}
		defer unlock()

		current, err := s.accounts.GetPage(ctx, page.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, reauth(account.ID, fmt.Errorf("%w: %s", ErrPageNotFound, page.ID))
		}
		if fresh(current.TokenExpiresAt, until) {
			token, err := s.cipher.Decrypt(current.AccessToken)
			if err != nil {
				return nil, reauth(account.ID, fmt.Errorf("decrypt page token: %w", err))
			}
			return &platform.Token{AccessToken: token, ExpiresAt: current.TokenExpiresAt}, nil
		}

		tok, err := pr.RefreshPage(ctx, accountToken, current.ExternalID)
		if err != nil {
			return nil, s.refreshFailure(ctx, account.ID, err)
		}
		enc, err := s.cipher.Encrypt(tok.AccessToken)
		if err != nil {
			return nil, err
		}
		if _, err := s.accounts.SetPageToken(ctx, current.ID, current.AccessToken, enc, tok.ExpiresAt, s.clock.Now()); err != nil {
			return nil, err
		}
		return tok, nil
	})
	if err != nil {
		return "", nil, err
	}
	tok := v.(*platform.Token)
	return tok.AccessToken, tok.ExpiresAt, nil
}

// refresh serializes refreshes of one account: singleflight within the
// process, the locker across processes. The account is re-read under the
// lock so a refresh another holder just finished is reused.
func (s *credentialService) refresh(ctx context.Context, accountID string, until time.Time) (*platform.Token, error) {
	v, err, _ := s.flight.Do("account:"+accountID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		unlock, err := s.locker.Lock(ctx, "account:"+accountID, refreshLockTTL)
		if err != nil {
			return nil, &CredentialError{Kind: CredentialExpired, AccountID: accountID, Err: err}
		}
		defer unlock()

		account, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, reauth(accountID, ErrAccountNotFound)
		}
		if !account.IsConnected {
			return nil, reauth(accountID, ErrAccountDisconnected)
		}

		if fresh(account.TokenExpiresAt, until) {
			token, err := s.cipher.Decrypt(account.AccessToken)
			if err != nil {
				return nil, reauth(accountID, fmt.Errorf("decrypt access token: %w", err))
			}
			return &platform.Token{AccessToken: token, ExpiresAt: account.TokenExpiresAt}, nil
		}
		return s.exchange(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return v.(*platform.Token), nil
}

func (s *credentialService) exchange(ctx context.Context, account *models.SocialAccount) (*platform.Token, error) {
	refresher, ok := s.refreshers[account.Platform]
	if !ok {
		return nil, &CredentialError{Kind: CredentialExpired, AccountID: account.ID,
			Err: fmt.Errorf("%w: %s", ErrNoRefresher, account.Platform)}
	}

	accessToken, err := s.cipher.Decrypt(account.AccessToken)
	if err != nil {
		return nil, reauth(account.ID, fmt.Errorf("decrypt access token: %w", err))
	}
	refreshToken, err := s.cipher.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, reauth(account.ID, fmt.Errorf("decrypt refresh token: %w", err))
	}

	tok, err := refresher.Refresh(ctx, platform.Grant{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		return nil, s.refreshFailure(ctx, account.ID, err)
	}

	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, err
	}

	ok, err = s.accounts.SetToken(ctx, account.ID, account.AccessToken, &models.SocialAccount{
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		TokenExpiresAt: tok.ExpiresAt,
		UpdatedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// a holder whose lease ran out wrote first; its token is as good as ours
		s.logger.Warn("token changed during refresh", "account_id", account.ID, "platform", account.Platform)
	} else {
		s.logger.Info("token refreshed", "account_id", account.ID, "platform", account.Platform)
	}
	return tok, nil
}

// refreshFailure soft-disables the account when the grant is gone and
// reports anything else as retriable.
func (s *credentialService) refreshFailure(ctx context.Context, accountID string, err error) error {
	if errors.Is(err, platform.ErrGrantRevoked) {
		if merr := s.MarkReauthRequired(ctx, accountID, err); merr != nil {
			return merr
		}
		return reauth(accountID, err)
	}
	return &CredentialError{Kind: CredentialExpired, AccountID: accountID, Err: err}
}

func (s *credentialService) MarkReauthRequired(ctx context.Context, accountID string, cause error) error {
	changed, err := s.accounts.SetConnected(ctx, accountID, false, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.logger.Warn("account disconnected", "account_id", accountID, "reason", reason)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return err
	}
	if err := s.notifier.AccountDisconnected(ctx, account, reason); err != nil {
		s.logger.Error("failed to record disconnect notification", "account_id", accountID, "error", err)
	}
	return nil
}

// RefreshExpiring refreshes connected accounts whose token runs out within
// the refresh window. Failures are per account and do not stop the sweep.
func (s *credentialService) RefreshExpiring(ctx context.Context) (*RefreshReport, error) {
	until := s.clock.Now().Add(s.cfg.RefreshWindow)
	accounts, err := s.accounts.ListExpiring(ctx, until)
	if err != nil {
		return nil, err
	}

	var refreshed, disconnected, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RefreshConcurrency)
	for _, account := range accounts {
		g.Go(func() error {
			_, err := s.refresh(gctx, account.ID, until)
			var cerr *CredentialError
			switch {
			case err == nil:
				refreshed.Add(1)
			case errors.As(err, &cerr) && cerr.Kind == CredentialReauthRequired:
				disconnected.Add(1)
			default:
				failed.Add(1)
				s.logger.Error("token refresh failed", "account_id", account.ID, "platform", account.Platform, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return &RefreshReport{
		Scanned:      len(accounts),
		Refreshed:    int(refreshed.Load()),
		Disconnected: int(disconnected.Load()),
		Failed:       int(failed.Load()),
	}, nil
}
