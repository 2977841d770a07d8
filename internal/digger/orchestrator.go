package digger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/lock"
	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/pysugar/creator-insights/internal/platform"
	"github.com/pysugar/creator-insights/internal/upstream"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pysugar/creator-insights/internal/digger"

// ErrNoReports means every report of a handle failed, so there was nothing
// to store.
var ErrNoReports = errors.New("no report succeeded")

// Repository is the account and handle persistence the orchestrator needs.
type Repository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	ListHandles(ctx context.Context, accountID string, p platform.Platform) ([]models.SocialMediaHandle, error)
	HandlesByUID(ctx context.Context, p platform.Platform, uids []string) (map[string]models.SocialMediaHandle, error)
	CreateHandles(ctx context.Context, handles []*models.SocialMediaHandle) error
	BulkUpdateHandles(ctx context.Context, handles []models.SocialMediaHandle) error
}

// DocumentStore applies updates to a handle's active document.
type DocumentStore interface {
	Apply(ctx context.Context, h *models.SocialMediaHandle, update insights.Update) (*insights.Document, error)
}

// TokenRefresher refreshes a handle's token in place when it has expired.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, h *models.SocialMediaHandle) (bool, error)
}

// Config holds the orchestrator's collaborators. Repository, Store and
// Tokens are required.
type Config struct {
	Repository Repository
	Store      DocumentStore
	Tokens     TokenRefresher
	Locker     lock.Locker
	Clock      clock.Clock
	Logger     *logrus.Logger
	Metrics    *Metrics
	Tracer     trace.Tracer
}

// Orchestrator drives the per handle workflow: token check, fetch,
// normalize and persist.
type Orchestrator struct {
	repo    Repository
	store   DocumentStore
	tokens  TokenRefresher
	locker  lock.Locker
	clock   clock.Clock
	log     *logrus.Entry
	metrics *Metrics
	tracer  trace.Tracer
	diggers Registry
}

// New creates an orchestrator for the given diggers.
func New(cfg Config, diggers ...Digger) *Orchestrator {
	o := &Orchestrator{
		repo:    cfg.Repository,
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		locker:  cfg.Locker,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		diggers: NewRegistry(diggers...),
	}
	if o.locker == nil {
		o.locker = lock.NewLocal()
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	o.log = logrus.NewEntry(logger).WithField("component", "digger")
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Platforms lists the platforms with a registered digger.
func (o *Orchestrator) Platforms() []platform.Platform {
	return o.diggers.Platforms()
}

// CreateOrUpdateHandles stores every account creds can read on p as a handle
// of accountID. Handles seen before get the new tokens and profile, unknown
// ones are created. Handles owned by another account are left alone.
func (o *Orchestrator) CreateOrUpdateHandles(ctx context.Context, accountID string, p platform.Platform, creds Credentials) (handles []models.SocialMediaHandle, err error) {
	ctx, span := o.tracer.Start(ctx, "digger.CreateOrUpdateHandles", trace.WithAttributes(
		attribute.String("account.id", accountID),
		attribute.String("platform", p.String()),
	))
	defer func() { endSpan(span, err) }()
	ctx = o.withLogger(ctx)

	d, ok := o.diggers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accounts.ErrUnsupportedPlatform, p)
	}
	if _, err := o.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	if ex, ok := d.(Exchanger); ok {
		creds, err = ex.Exchange(ctx, creds)
		if err != nil {
			return nil, authError(fmt.Errorf("exchange token: %w", err))
		}
	}
	profiles, err := d.ListAccounts(ctx, creds.AccessToken)
	if err != nil {
		return nil, authError(fmt.Errorf("list %s accounts: %w", p, err))
	}
	return o.syncHandles(ctx, accountID, p, creds.AccessToken, creds.RefreshToken, creds.Expiry(o.clock.Now()), profiles)
}

// ResyncHandles lists the platform accounts reachable with the tokens of
// accountID's handles and creates or updates handles for them. A failing
// platform is logged and does not stop the others.
func (o *Orchestrator) ResyncHandles(ctx context.Context, accountID string) (synced []models.SocialMediaHandle, err error) {
	ctx, span := o.tracer.Start(ctx, "digger.ResyncHandles", trace.WithAttributes(
		attribute.String("account.id", accountID),
	))
	defer func() { endSpan(span, err) }()
	ctx = o.withLogger(ctx)
	log := o.logger(ctx).WithField("account", accountID)

	handles, err := o.repo.ListHandles(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	var errs []error
	seen := make(map[string]bool)
	for i := range handles {
		h := &handles[i]
		p, err := platform.Parse(h.Platform)
		if err != nil {
			continue
		}
		d, ok := o.diggers[p]
		if !ok || h.AccessToken == "" || seen[h.AccessToken] {
			continue
		}

		refreshed, err := o.tokens.EnsureFresh(ctx, h)
		if err != nil {
			o.metrics.IncTokenRefresh(p.String(), StatusFailure)
			log.WithError(err).WithField("handle", h.ID).Warn("token refresh failed, skipping resync")
			errs = append(errs, fmt.Errorf("handle %s: %w", h.ID, err))
			continue
		}
		if refreshed {
			o.metrics.IncTokenRefresh(p.String(), StatusSuccess)
			if err := o.repo.BulkUpdateHandles(ctx, []models.SocialMediaHandle{*h}); err != nil {
				errs = append(errs, fmt.Errorf("handle %s: %w", h.ID, err))
				continue
			}
		}
		seen[h.AccessToken] = true

		profiles, err := d.ListAccounts(ctx, h.AccessToken)
		if err != nil {
			log.WithError(err).WithField("platform", p).Warn("listing accounts failed")
			errs = append(errs, fmt.Errorf("%s: %w", p, authError(err)))
			continue
		}
		got, err := o.syncHandles(ctx, accountID, p, h.AccessToken, h.RefreshToken, h.TokenExpiresAt, profiles)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		synced = append(synced, got...)
	}
	return synced, errors.Join(errs...)
}

func (o *Orchestrator) syncHandles(ctx context.Context, accountID string, p platform.Platform, accessToken, refreshToken string, expiry time.Time, profiles []Profile) ([]models.SocialMediaHandle, error) {
	log := o.logger(ctx).WithFields(logrus.Fields{"account": accountID, "platform": p})

	uids := make([]string, 0, len(profiles))
	unique := make(map[string]Profile, len(profiles))
	for _, prof := range profiles {
		if prof.UID == "" {
			continue
		}
		if _, dup := unique[prof.UID]; !dup {
			uids = append(uids, prof.UID)
		}
		unique[prof.UID] = prof
	}

	existing, err := o.repo.HandlesByUID(ctx, p, uids)
	if err != nil {
		return nil, err
	}

	var (
		created []*models.SocialMediaHandle
		updated []models.SocialMediaHandle
		foreign int
	)
	for _, uid := range uids {
		prof := unique[uid]
		token := accessToken
		if prof.AccessToken != "" {
			token = prof.AccessToken
		}

		if h, ok := existing[uid]; ok {
			if h.AccountID != accountID {
				log.WithField("handle_uid", uid).Warn("handle is connected to another account, skipping")
				foreign++
				continue
			}
			h.AccessToken = token
			if refreshToken != "" {
				h.RefreshToken = refreshToken
			}
			h.IsRefreshTokenDependent = h.RefreshToken != ""
			h.TokenExpiresAt = expiry
			h.IsDisabled = false
			applyProfile(&h, prof)
			updated = append(updated, h)
			continue
		}

		h := &models.SocialMediaHandle{
			AccountID:               accountID,
			Platform:                p.String(),
			HandleUID:               uid,
			AccessToken:             token,
			RefreshToken:            refreshToken,
			IsRefreshTokenDependent: refreshToken != "",
			TokenExpiresAt:          expiry,
		}
		applyProfile(h, prof)
		created = append(created, h)
	}

	if err := o.repo.CreateHandles(ctx, created); err != nil {
		return nil, err
	}
	if err := o.repo.BulkUpdateHandles(ctx, updated); err != nil {
		return nil, err
	}
	o.metrics.AddResynced(p.String(), "created", len(created))
	o.metrics.AddResynced(p.String(), "updated", len(updated))
	log.WithFields(logrus.Fields{"created": len(created), "updated": len(updated)}).Info("handles synced")

	out := updated
	for _, h := range created {
		out = append(out, *h)
	}
	if len(out) == 0 && foreign > 0 {
		return nil, accounts.ErrHandleAlreadyExists
	}
	return out, nil
}

// UpdateHandleInsights runs one fetch cycle for h and returns the updated
// document. h is modified in place (tokens, profile, sync stamps); the
// caller persists it.
func (o *Orchestrator) UpdateHandleInsights(ctx context.Context, h *models.SocialMediaHandle) (doc *insights.Document, err error) {
	p, err := platform.Parse(h.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", accounts.ErrUnsupportedPlatform, err)
	}
	d, ok := o.diggers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accounts.ErrUnsupportedPlatform, p)
	}

	ctx, span := o.tracer.Start(ctx, "digger.UpdateHandleInsights", trace.WithAttributes(
		attribute.String("platform", p.String()),
		attribute.String("handle.id", h.ID),
	))
	defer func() { endSpan(span, err) }()
	ctx = o.withLogger(ctx)
	log := o.logger(ctx).WithFields(logrus.Fields{"handle": h.ID, "platform": p})

	started := o.clock.Now()
	status := StatusFailure
	defer func() {
		o.metrics.ObserveHandle(p.String(), status, o.clock.Since(started).Seconds())
	}()

	unlock, err := o.locker.TryLock(ctx, "handle:"+h.ID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			status = StatusSkipped
		}
		return nil, err
	}
	defer unlock()

	refreshed, err := o.tokens.EnsureFresh(ctx, h)
	if err != nil {
		o.metrics.IncTokenRefresh(p.String(), StatusFailure)
		h.LastSyncError = err.Error()
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if refreshed {
		o.metrics.IncTokenRefresh(p.String(), StatusSuccess)
	}

	res := d.Fetch(ctx, h)
	now := o.clock.Now().UTC()
	h.LastTokenUse = &now

	var reportErrs []error
	for _, outcome := range res.Reports {
		if outcome.Err != nil {
			o.metrics.IncReport(p.String(), outcome.Report, StatusFailure)
			log.WithError(outcome.Err).WithField("report", outcome.Report).Warn("report failed, skipping")
			reportErrs = append(reportErrs, fmt.Errorf("%s: %w", outcome.Report, outcome.Err))
			continue
		}
		o.metrics.IncReport(p.String(), outcome.Report, StatusSuccess)
	}
	if res.Profile != nil {
		applyProfile(h, *res.Profile)
	}

	if res.Update == nil {
		err = errors.Join(append([]error{ErrNoReports}, reportErrs...)...)
		h.LastSyncError = err.Error()
		return nil, err
	}
	doc, err = o.store.Apply(ctx, h, res.Update)
	if err != nil {
		h.LastSyncError = err.Error()
		return nil, fmt.Errorf("save document: %w", err)
	}

	h.LastSyncedAt = &now
	h.LastSyncError = ""
	if joined := errors.Join(reportErrs...); joined != nil {
		h.LastSyncError = joined.Error()
	}
	status = res.Status()
	log.WithFields(logrus.Fields{
		"document": doc.ID,
		"reports":  len(res.Reports),
		"failed":   len(reportErrs),
	}).Info("handle insights updated")
	return doc, nil
}

// UpdateAllHandlesInsights updates every enabled handle of accountID and
// writes the changed handles back in one bulk update. A failing handle is
// logged and skipped.
func (o *Orchestrator) UpdateAllHandlesInsights(ctx context.Context, accountID string) (docs []*insights.Document, err error) {
	ctx, span := o.tracer.Start(ctx, "digger.UpdateAllHandlesInsights", trace.WithAttributes(
		attribute.String("account.id", accountID),
	))
	defer func() { endSpan(span, err) }()
	ctx = o.withLogger(ctx)
	log := o.logger(ctx).WithField("account", accountID)

	if _, err := o.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	handles, err := o.repo.ListHandles(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	touched := make([]models.SocialMediaHandle, 0, len(handles))
	for i := range handles {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("update interrupted")
			break
		}
		h := &handles[i]
		doc, err := o.safeUpdate(ctx, h)
		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			log.WithField("handle", h.ID).Info("handle is being updated elsewhere, skipping")
			continue
		case errors.Is(err, accounts.ErrUnsupportedPlatform):
			log.WithField("handle", h.ID).WithError(err).Debug("no digger for handle")
			continue
		case err != nil:
			log.WithError(err).WithFields(logrus.Fields{"handle": h.ID, "platform": h.Platform}).
				Warn("handle update failed, continuing")
		default:
			docs = append(docs, doc)
		}
		touched = append(touched, *h)
	}

	if err := o.repo.BulkUpdateHandles(ctx, touched); err != nil {
		return docs, fmt.Errorf("bulk update handles: %w", err)
	}
	return docs, nil
}

// safeUpdate turns a panic in one handle's cycle into an error.
func (o *Orchestrator) safeUpdate(ctx context.Context, h *models.SocialMediaHandle) (doc *insights.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic updating handle %s: %v", h.ID, r)
		}
	}()
	return o.UpdateHandleInsights(ctx, h)
}

// RunSummary describes one RunAll pass.
type RunSummary struct {
	Accounts       int
	FailedAccounts int
	Documents      int
	Duration       time.Duration
}

// RunAll updates every account with enabled handles, one account at a time.
// Account failures are logged and counted; only a failure to list the
// accounts or a cancelled context is returned.
func (o *Orchestrator) RunAll(ctx context.Context) (summary RunSummary, err error) {
	ctx, span := o.tracer.Start(ctx, "digger.RunAll")
	defer func() { endSpan(span, err) }()
	ctx = o.withLogger(ctx)
	log := o.logger(ctx)

	started := o.clock.Now()
	defer func() {
		summary.Duration = o.clock.Since(started)
		status := StatusSuccess
		switch {
		case err != nil:
			status = StatusFailure
		case summary.FailedAccounts > 0:
			status = StatusPartial
		}
		o.metrics.ObserveRun(status, summary.Duration.Seconds())
	}()

	ids, err := o.repo.ListAccountIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list accounts: %w", err)
	}
	log.WithField("accounts", len(ids)).Info("digger run started")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("digger run interrupted")
			return summary, err
		}
		summary.Accounts++
		docs, err := o.UpdateAllHandlesInsights(ctx, id)
		summary.Documents += len(docs)
		if err != nil {
			summary.FailedAccounts++
			log.WithError(err).WithField("account", id).Error("account update failed")
		}
	}

	log.WithFields(logrus.Fields{
		"accounts":  summary.Accounts,
		"failed":    summary.FailedAccounts,
		"documents": summary.Documents,
	}).Info("digger run finished")
	return summary, nil
}

func (o *Orchestrator) withLogger(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, o.log)
}

func (o *Orchestrator) logger(ctx context.Context) *logrus.Entry {
	return logging.Entry(ctx)
}

func applyProfile(h *models.SocialMediaHandle, prof Profile) {
	if prof.Username != "" {
		h.Username = prof.Username
	}
	if prof.URL != "" {
		h.HandleURL = prof.URL
	}
	if prof.Avatar != "" {
		h.Avatar = prof.Avatar
	}
	h.FollowerCount = prof.FollowerCount
	h.MediaCount = prof.MediaCount
	if len(prof.MetaData) > 0 {
		if h.MetaData == nil {
			h.MetaData = make(map[string]any, len(prof.MetaData))
		}
		for k, v := range prof.MetaData {
			h.MetaData[k] = v
		}
	}
}

// authError marks credential rejections as ErrPlatformAuthorization.
func authError(err error) error {
	if err == nil || errors.Is(err, accounts.ErrPlatformAuthorization) || !upstream.IsAuthError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", accounts.ErrPlatformAuthorization, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
