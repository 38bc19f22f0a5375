package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"commerce-sync/core/woo"
	"commerce-sync/feature/catalog/models"
	"commerce-sync/feature/catalog/reconcile"
	"commerce-sync/feature/catalog/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunInProgress rejects a second concurrent run over the same record
// kind. Two interleaved runs could race on the absence demotion.
var ErrRunInProgress = errors.New("sync run already in progress for this scope")

// systemActor is the audit identity of sync-originated mutations.
const systemActor = "system-sync"

// RunState is the lifecycle phase of one batch run.
type RunState string

const (
	StateStarted     RunState = "started"
	StateFetching    RunState = "fetching"
	StateReconciling RunState = "reconciling"
	StateCompleted   RunState = "completed"
	StateFailed      RunState = "failed"
)

// Scope bounds one run. From/To only apply to order syncs; zero times
// leave the bound open.
type Scope struct {
	Kind models.RecordKind
	From time.Time
	To   time.Time
}

// Summary is the outcome report of one run. It is produced even when the
// run fails.
type Summary struct {
	BatchID string            `json:"batch_id"`
	Kind    models.RecordKind `json:"kind"`
	State   RunState          `json:"state"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Pages     int `json:"pages"`
	Fetched   int `json:"fetched"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Demoted   int `json:"demoted"`
	Flagged   int `json:"flagged_for_review"`
	Errors    int `json:"errors"`

	Classifications map[models.Classification]int64 `json:"classifications,omitempty"`
	SyncStatuses    map[models.SyncStatus]int64     `json:"sync_statuses,omitempty"`

	Retries int           `json:"retries"`
	Backoff time.Duration `json:"backoff"`

	Error string `json:"error,omitempty"`
}

// Fetcher is the paginated view of the upstream source the orchestrator
// consumes.
type Fetcher interface {
	FetchProducts(ctx context.Context, fn func(page []woo.Product) error) error
	FetchVariations(ctx context.Context, productID int64, fn func(page []woo.Variation) error) error
	FetchOrders(ctx context.Context, after, before time.Time, fn func(page []woo.Order) error) error
}

// StatsSource reports accumulated retry observability, normally the
// upstream client.
type StatsSource interface {
	TakeStats() woo.Stats
}

// Orchestrator sequences fetch, reconcile, persist and audit for one run.
type Orchestrator struct {
	store   *store.Store
	trail   *store.AuditTrail
	fetcher Fetcher
	stats   StatsSource
	logger  *zap.Logger

	mu      sync.Mutex
	running map[models.RecordKind]bool
}

// New creates an orchestrator. stats may be nil.
func New(st *store.Store, trail *store.AuditTrail, fetcher Fetcher, stats StatsSource, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   st,
		trail:   trail,
		fetcher: fetcher,
		stats:   stats,
		logger:  logger,
		running: make(map[models.RecordKind]bool),
	}
}

// Run executes one batch run over the scope. At most one run per record
// kind executes at a time; a second request reports ErrRunInProgress.
// On failure the returned summary carries the partial counts alongside
// the error, and no absence demotion has taken place.
func (o *Orchestrator) Run(ctx context.Context, scope Scope) (*Summary, error) {
	if o.fetcher == nil {
		return nil, errors.New("no upstream source configured")
	}
	if scope.Kind != models.KindProduct && scope.Kind != models.KindOrder {
		return nil, fmt.Errorf("unknown record kind %q", scope.Kind)
	}
	if !o.tryLock(scope.Kind) {
		return nil, ErrRunInProgress
	}
	defer o.unlock(scope.Kind)

	summary := &Summary{
		BatchID:   uuid.NewString(),
		Kind:      scope.Kind,
		State:     StateStarted,
		StartedAt: time.Now().UTC(),
	}
	log := o.logger.With(
		zap.String("batch_id", summary.BatchID),
		zap.String("kind", string(scope.Kind)),
	)
	log.Info("Sync run started")

	summary.State = StateFetching
	var fetchErr error
	if scope.Kind == models.KindProduct {
		fetchErr = o.fetchProducts(ctx, summary, log)
	} else {
		fetchErr = o.fetchOrders(ctx, scope, summary, log)
	}
	if fetchErr == nil {
		fetchErr = ctx.Err()
	}

	if fetchErr != nil {
		// A partial fetch cannot distinguish "deleted" from "not yet
		// seen", so no demotion happens on a failed or cancelled run.
		o.finish(summary, StateFailed, fetchErr)
		log.Error("Sync run failed", zap.Error(fetchErr))
		return summary, fetchErr
	}

	if err := o.sweepAbsent(ctx, scope, summary, log); err != nil {
		o.finish(summary, StateFailed, err)
		log.Error("Sync run failed during absence sweep", zap.Error(err))
		return summary, err
	}

	if counts, err := o.store.ClassificationCounts(ctx, scope.Kind); err == nil {
		summary.Classifications = counts
	}
	if counts, err := o.store.SyncStatusCounts(ctx, scope.Kind); err == nil {
		summary.SyncStatuses = counts
	}

	o.finish(summary, StateCompleted, nil)
	log.Info("Sync run completed",
		zap.Int("fetched", summary.Fetched),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("demoted", summary.Demoted),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (o *Orchestrator) finish(summary *Summary, state RunState, err error) {
	summary.State = state
	summary.FinishedAt = time.Now().UTC()
	if err != nil {
		summary.Error = err.Error()
	}
	if o.stats != nil {
		s := o.stats.TakeStats()
		summary.Retries = s.Retries
		summary.Backoff = s.Backoff
	}
}

func (o *Orchestrator) tryLock(kind models.RecordKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[kind] {
		return false
	}
	o.running[kind] = true
	return true
}

func (o *Orchestrator) unlock(kind models.RecordKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[kind] = false
}

func (o *Orchestrator) fetchProducts(ctx context.Context, summary *Summary, log *zap.Logger) error {
	return o.fetcher.FetchProducts(ctx, func(page []woo.Product) error {
		summary.Pages++
		summary.State = StateReconciling
		defer func() { summary.State = StateFetching }()

		for _, p := range page {
			summary.Fetched++

			snap, err := reconcile.SnapshotProduct(p)
			if err != nil {
				summary.Errors++
				log.Warn("Skipping malformed product", zap.Int64("product_id", p.ID), zap.Error(err))
				// Still present upstream; keep it out of the absence sweep.
				if err := o.markProductSeen(ctx, summary, p.ID, 0); err != nil {
					return err
				}
			} else if err := o.reconcileProduct(ctx, summary, snap); err != nil {
				return err
			}

			if p.Type == "variable" {
				if err := o.fetchVariations(ctx, summary, p, log); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (o *Orchestrator) fetchVariations(ctx context.Context, summary *Summary, parent woo.Product, log *zap.Logger) error {
	return o.fetcher.FetchVariations(ctx, parent.ID, func(page []woo.Variation) error {
		for _, v := range page {
			summary.Fetched++

			snap, err := reconcile.SnapshotVariation(parent, v)
			if err != nil {
				summary.Errors++
				log.Warn("Skipping malformed variation",
					zap.Int64("product_id", parent.ID),
					zap.Int64("variation_id", v.ID),
					zap.Error(err),
				)
				if err := o.markProductSeen(ctx, summary, parent.ID, v.ID); err != nil {
					return err
				}
				continue
			}
			if err := o.reconcileProduct(ctx, summary, snap); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) reconcileProduct(ctx context.Context, summary *Summary, snap reconcile.ProductSnapshot) error {
	cached, err := o.store.GetProduct(ctx, snap.ProductID, snap.VariationID)
	isNew := errors.Is(err, store.ErrRecordNotFound)
	if err != nil && !isNew {
		return err
	}
	if isNew {
		cached = &models.CachedProduct{
			ProductID:   snap.ProductID,
			VariationID: snap.VariationID,
			SyncStatus:  models.SyncStatusSuccess,
		}
	}

	prev := cached.Classification
	next, _ := reconcile.NextClassification(prev, true)
	changes := reconcile.ApplyProduct(cached, snap)

	cached.Classification = next
	cached.LastBatchID = summary.BatchID
	started := summary.StartedAt
	cached.LastSyncedAt = &started

	if isNew {
		if err := o.store.CreateProduct(ctx, cached); err != nil {
			return err
		}
		summary.Created++
	} else {
		if err := o.store.SaveProduct(ctx, cached); err != nil {
			return err
		}
		switch {
		case len(changes) > 0 || next != prev:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	ref := cached.Ref()
	for _, change := range changes {
		o.appendAudit(ctx, summary, ref, change)
	}
	if !isNew && next != prev {
		o.appendAudit(ctx, summary, ref, reconcile.FieldChange{
			Field: "classification", Old: string(prev), New: string(next),
		})
	}
	return nil
}

func (o *Orchestrator) fetchOrders(ctx context.Context, scope Scope, summary *Summary, log *zap.Logger) error {
	return o.fetcher.FetchOrders(ctx, scope.From, scope.To, func(page []woo.Order) error {
		summary.Pages++
		summary.State = StateReconciling
		defer func() { summary.State = StateFetching }()

		for _, ord := range page {
			summary.Fetched++

			snap, err := reconcile.SnapshotOrder(ord)
			if err != nil {
				summary.Errors++
				log.Warn("Skipping malformed order", zap.Int64("order_id", ord.ID), zap.Error(err))
				if err := o.markOrderSeen(ctx, summary, ord.ID); err != nil {
					return err
				}
				continue
			}
			if err := o.reconcileOrder(ctx, summary, snap); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) reconcileOrder(ctx context.Context, summary *Summary, snap reconcile.OrderSnapshot) error {
	cached, err := o.store.GetOrder(ctx, snap.OrderID)
	isNew := errors.Is(err, store.ErrRecordNotFound)
	if err != nil && !isNew {
		return err
	}
	if isNew {
		cached = &models.CachedOrder{
			OrderID:    snap.OrderID,
			SyncStatus: models.SyncStatusSuccess,
		}
	}

	prev := cached.Classification
	next, _ := reconcile.NextClassification(prev, true)
	changes, err := reconcile.ApplyOrder(cached, snap)
	if err != nil {
		summary.Errors++
		// cached may hold partially applied fields; stamp a fresh copy.
		return o.markOrderSeen(ctx, summary, snap.OrderID)
	}

	cached.Classification = next
	cached.LastBatchID = summary.BatchID
	started := summary.StartedAt
	cached.LastSyncedAt = &started

	if isNew {
		if err := o.store.CreateOrder(ctx, cached); err != nil {
			return err
		}
		summary.Created++
	} else {
		if err := o.store.SaveOrder(ctx, cached); err != nil {
			return err
		}
		switch {
		case len(changes) > 0 || next != prev:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	ref := cached.Ref()
	for _, change := range changes {
		o.appendAudit(ctx, summary, ref, change)
	}
	if !isNew && next != prev {
		o.appendAudit(ctx, summary, ref, reconcile.FieldChange{
			Field: "classification", Old: string(prev), New: string(next),
		})
	}
	return nil
}

// markProductSeen stamps a cached record the source still reports but
// whose snapshot could not be applied. Only records absent from the
// fetch may be demoted, so a skipped record must not look stale to the
// sweep. A record never cached before has nothing at stake.
func (o *Orchestrator) markProductSeen(ctx context.Context, summary *Summary, productID, variationID int64) error {
	cached, err := o.store.GetProduct(ctx, productID, variationID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cached.LastBatchID = summary.BatchID
	started := summary.StartedAt
	cached.LastSyncedAt = &started
	return o.store.SaveProduct(ctx, cached)
}

func (o *Orchestrator) markOrderSeen(ctx context.Context, summary *Summary, orderID int64) error {
	cached, err := o.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cached.LastBatchID = summary.BatchID
	started := summary.StartedAt
	cached.LastSyncedAt = &started
	return o.store.SaveOrder(ctx, cached)
}

// sweepAbsent applies the absence rule after a completed full fetch:
// records of the scoped kind the run never touched are demoted to
// deleted-upstream, except locked records which are flagged for review.
func (o *Orchestrator) sweepAbsent(ctx context.Context, scope Scope, summary *Summary, log *zap.Logger) error {
	started := summary.StartedAt

	if scope.Kind == models.KindProduct {
		missed, err := o.store.ProductsNotInBatch(ctx, summary.BatchID)
		if err != nil {
			return err
		}
		for i := range missed {
			p := &missed[i]
			prev := p.Classification
			next, flag := reconcile.NextClassification(prev, false)
			if next == prev && !(flag && !p.ReviewFlagged) {
				continue
			}

			p.Classification = next
			if flag {
				p.ReviewFlagged = true
			}
			p.LastSyncedAt = &started
			if err := o.store.SaveProduct(ctx, p); err != nil {
				return err
			}
			o.recordAbsence(ctx, summary, p.Ref(), prev, next, flag, log)
		}
		return nil
	}

	missed, err := o.store.OrdersNotInBatchBetween(ctx, summary.BatchID, scope.From, scope.To)
	if err != nil {
		return err
	}
	for i := range missed {
		ord := &missed[i]
		prev := ord.Classification
		next, flag := reconcile.NextClassification(prev, false)
		if next == prev && !(flag && !ord.ReviewFlagged) {
			continue
		}

		ord.Classification = next
		if flag {
			ord.ReviewFlagged = true
		}
		ord.LastSyncedAt = &started
		if err := o.store.SaveOrder(ctx, ord); err != nil {
			return err
		}
		o.recordAbsence(ctx, summary, ord.Ref(), prev, next, flag, log)
	}
	return nil
}

func (o *Orchestrator) recordAbsence(ctx context.Context, summary *Summary, ref models.RecordRef, prev, next models.Classification, flagged bool, log *zap.Logger) {
	if flagged {
		summary.Flagged++
		o.appendAudit(ctx, summary, ref, reconcile.FieldChange{
			Field: "review_flagged", Old: "false", New: "true",
		})
		log.Info("Locked record absent upstream, flagged for review", zap.String("record", ref.String()))
		return
	}
	summary.Demoted++
	o.appendAudit(ctx, summary, ref, reconcile.FieldChange{
		Field: "classification", Old: string(prev), New: string(next),
	})
}

// appendAudit records one sync-originated change. Audit failures are
// logged and counted but never abort the run that caused them.
func (o *Orchestrator) appendAudit(ctx context.Context, summary *Summary, ref models.RecordRef, change reconcile.FieldChange) {
	err := o.trail.Append(ctx, &models.AuditEntry{
		RecordKind:   ref.Kind,
		ExternalID:   ref.ExternalID,
		VariationID:  ref.VariationID,
		FieldChanged: change.Field,
		OldValue:     change.Old,
		NewValue:     change.New,
		Actor:        systemActor,
		ChangeSource: models.SourceSync,
		BatchID:      summary.BatchID,
		Outcome:      models.OutcomeSuccess,
	})
	if err != nil {
		summary.Errors++
		o.logger.Error("Audit append failed", zap.String("record", ref.String()), zap.Error(err))
	}
}
