// Package syncer drives paginated fetch, transform and upsert cycles for
// configured connectors.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/connector"
	"github.com/Ramsey-B/fern/pkg/crypto"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

var (
	ErrEntityTypeRequired = errors.New("entity type is required")
	ErrEntityTypeMismatch = errors.New("connector does not support entity type")
	ErrConnectorInactive  = errors.New("connector is inactive")
	ErrSyncInProgress     = errors.New("a sync is already running for this connector")
)

const (
	// DefaultBatchSize is the page size when SyncOptions.BatchSize is unset.
	DefaultBatchSize = 100

	// DefaultPagePause smooths the request rate of rate-limited connectors.
	DefaultPagePause = 100 * time.Millisecond

	// DefaultLockTTL bounds how long a crashed sync can hold its connector.
	DefaultLockTTL = 30 * time.Minute
)

// Locker serializes syncs of one connector across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Orchestrator runs syncs and owns the connector cache.
type Orchestrator struct {
	connectors repositories.ConnectorRepo
	records    repositories.RecordRepo
	encryptor  crypto.Encryptor
	factory    *connector.Factory
	validator  *validation.Engine
	publisher  kafka.Publisher
	locker     Locker
	cache      *Cache
	logger     ectologger.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	pagePause time.Duration
	lockTTL   time.Duration
	now       func() time.Time
}

type Option func(*Orchestrator)

// WithValidator enables SyncOptions.Validate.
func WithValidator(v *validation.Engine) Option {
	return func(o *Orchestrator) { o.validator = v }
}

func WithPublisher(p kafka.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLocker refuses overlapping syncs of the same connector.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func WithPagePause(d time.Duration) Option {
	return func(o *Orchestrator) { o.pagePause = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	connectors repositories.ConnectorRepo,
	records repositories.RecordRepo,
	encryptor crypto.Encryptor,
	factory *connector.Factory,
	logger ectologger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		connectors: connectors,
		records:    records,
		encryptor:  encryptor,
		factory:    factory,
		publisher:  kafka.NoopPublisher{},
		cache:      NewCache(),
		logger:     logger,
		sleep:      sleepContext,
		pagePause:  DefaultPagePause,
		lockTTL:    DefaultLockTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Cache exposes the connector cache.
func (o *Orchestrator) Cache() *Cache {
	return o.cache
}

// ClearCache drops every cached connector.
func (o *Orchestrator) ClearCache() int {
	n := o.cache.Clear()
	o.logger.Infof("Cleared %d cached connectors", n)
	return n
}

// Invalidate drops one cached connector.
func (o *Orchestrator) Invalidate(connectorID uuid.UUID) {
	o.cache.Invalidate(connectorID)
}

// Connector returns the cached connector for id, building it on first use.
func (o *Orchestrator) Connector(ctx context.Context, connectorID uuid.UUID) (connector.Connector, error) {
	if conn, ok := o.cache.Get(connectorID); ok {
		return conn, nil
	}

	cfg, err := o.connectors.GetByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}

	credential := ""
	if cfg.Credential != nil && *cfg.Credential != "" {
		credential, err = o.encryptor.Decrypt(*cfg.Credential)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithField("connector_id", connectorID).Error("failed to decrypt connector credential")
			return nil, fmt.Errorf("failed to decrypt credential for connector %s: %w", connectorID, err)
		}
	}

	conn, err := o.factory.Build(cfg, credential)
	if err != nil {
		return nil, err
	}

	o.cache.Put(connectorID, conn)
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": connectorID,
		"source_type":  cfg.SourceType,
	}).Debugf("Built connector %s", cfg.Name)
	return conn, nil
}

// TestConnection probes the connector's health endpoint. Only a failure to
// load the connector is returned as an error.
func (o *Orchestrator) TestConnection(ctx context.Context, connectorID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.TestConnection")
	defer span.End()

	conn, err := o.Connector(ctx, connectorID)
	if err != nil {
		return false, err
	}
	return conn.Client().TestConnection(ctx, conn.HealthCheckEndpoint()), nil
}

// ExecuteRequest sends an ad-hoc request through the connector's client.
func (o *Orchestrator) ExecuteRequest(ctx context.Context, connectorID uuid.UUID, req connector.Request) (*connector.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.ExecuteRequest")
	defer span.End()

	conn, err := o.Connector(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	return conn.Client().Request(ctx, req)
}

// SyncData fetches every page of opts.EntityType from the connector and
// upserts each record by natural key. It always returns a result; Success is
// false only when the run failed before any page was processed.
func (o *Orchestrator) SyncData(ctx context.Context, connectorID uuid.UUID, opts models.SyncOptions) *models.SyncResult {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.SyncData")
	defer span.End()

	started := o.now()
	result := &models.SyncResult{
		Success:     true,
		ConnectorID: connectorID,
		EntityType:  opts.EntityType,
		Errors:      []models.RecordError{},
	}
	logger := o.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": connectorID,
		"entity_type":  opts.EntityType,
	})

	defer func() {
		result.Duration = o.now().Sub(started)
		result.DurationMs = result.Duration.Milliseconds()
		metrics.RecordSync(string(opts.EntityType), result.Success, result.RecordsInserted, result.RecordsUpdated, result.RecordsSkipped, result.Duration.Seconds())
		o.publish(ctx, result)
		logger.Infof("Sync finished: fetched=%d inserted=%d updated=%d skipped=%d errors=%d",
			result.RecordsFetched, result.RecordsInserted, result.RecordsUpdated, result.RecordsSkipped, len(result.Errors))
	}()

	conn, err := o.prepare(ctx, connectorID, opts)
	if err != nil {
		logger.WithError(err).Warn("Sync failed before fetching")
		fail(result, err)
		return result
	}

	run := func() error {
		if o.run(ctx, conn, opts, result) {
			o.markSynced(ctx, conn, started)
		}
		return nil
	}

	if o.locker == nil {
		_ = run()
		return result
	}

	err = o.locker.WithLock(ctx, "sync:"+connectorID.String(), o.lockTTL, run)
	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		fail(result, ErrSyncInProgress)
	case err != nil:
		logger.WithError(err).Warn("Sync lock unavailable, running unlocked")
		_ = run()
	}
	return result
}

// prepare loads the connector and checks it can serve opts.
func (o *Orchestrator) prepare(ctx context.Context, connectorID uuid.UUID, opts models.SyncOptions) (connector.Connector, error) {
	if opts.EntityType == "" {
		return nil, ErrEntityTypeRequired
	}

	conn, err := o.Connector(ctx, connectorID)
	if err != nil {
		return nil, err
	}

	if !conn.Client().Config().Active {
		return nil, ErrConnectorInactive
	}
	if conn.EntityType() != opts.EntityType {
		return nil, fmt.Errorf("%w: %s supports %s, not %s", ErrEntityTypeMismatch, conn.Client().Config().Name, conn.EntityType(), opts.EntityType)
	}
	return conn, nil
}

// run pages through the source. It reports whether every page was fetched.
func (o *Orchestrator) run(ctx context.Context, conn connector.Connector, opts models.SyncOptions, result *models.SyncResult) bool {
	cfg := conn.Client().Config()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	dateFrom := opts.DateFrom
	if opts.Incremental && dateFrom == nil {
		dateFrom = cfg.LastSyncAt
	}

	for page := 0; ; page++ {
		if page > 0 && cfg.RateLimit() != nil {
			if err := o.sleep(ctx, o.pagePause); err != nil {
				result.Errors = append(result.Errors, models.RecordError{Message: fmt.Sprintf("sync interrupted: %v", err)})
				return false
			}
		}

		fetched, err := conn.FetchPage(ctx, connector.PageRequest{
			Page:     page,
			PageSize: batchSize,
			DateFrom: dateFrom,
			DateTo:   opts.DateTo,
			TenantID: opts.TenantID,
		})
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"connector_id": cfg.ID,
				"page":         page + 1,
			}).Warn("Failed to fetch page, stopping sync")
			result.Errors = append(result.Errors, models.RecordError{Message: fmt.Sprintf("failed to fetch page %d: %v", page+1, err)})
			return false
		}

		result.RecordsFetched += len(fetched.Records)

		transformed, err := conn.Transform(fetched.Records)
		if err != nil {
			result.Errors = append(result.Errors, models.RecordError{Message: fmt.Sprintf("failed to transform page %d: %v", page+1, err)})
			return false
		}

		for _, tr := range transformed {
			o.persist(ctx, tr.Record, opts, result)
		}

		if len(fetched.Records) != batchSize {
			return true
		}
	}
}

// persist validates and upserts one record. Failures are recorded as skipped.
func (o *Orchestrator) persist(ctx context.Context, record models.Record, opts models.SyncOptions, result *models.SyncResult) {
	if opts.TenantID != nil {
		record.SetOwner(*opts.TenantID)
	}

	skip := func(err error) {
		result.RecordsSkipped++
		result.Errors = append(result.Errors, models.RecordError{Record: record.Fields(), Message: err.Error()})
	}

	if opts.Validate && o.validator != nil {
		vr, err := o.validator.ValidateRecord(ctx, record, validation.Context{MunicipalityID: opts.TenantID})
		if err != nil {
			skip(err)
			return
		}
		if !vr.Valid {
			skip(validationFailure(vr))
			return
		}
	}

	existing, err := o.records.FindExisting(ctx, record)
	if err != nil {
		skip(err)
		return
	}

	if existing != nil {
		if err := o.records.Update(ctx, *existing, record); err != nil {
			skip(err)
			return
		}
		result.RecordsUpdated++
		return
	}

	if _, err := o.records.Create(ctx, record); err != nil {
		skip(err)
		return
	}
	result.RecordsInserted++
}

func (o *Orchestrator) markSynced(ctx context.Context, conn connector.Connector, at time.Time) {
	cfg := conn.Client().Config()
	if err := o.connectors.MarkSynced(ctx, cfg.ID, at); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("connector_id", cfg.ID).Warn("failed to stamp last sync time")
		return
	}
	cfg.LastSyncAt = &at
}

func (o *Orchestrator) publish(ctx context.Context, result *models.SyncResult) {
	err := o.publisher.Publish(ctx, &kafka.Event{
		Type:        kafka.EventSyncCompleted,
		ConnectorID: result.ConnectorID.String(),
		EntityType:  string(result.EntityType),
		Success:     result.Success,
		Total:       result.RecordsFetched,
		Inserted:    result.RecordsInserted,
		Updated:     result.RecordsUpdated,
		Failed:      result.RecordsSkipped,
		DurationMs:  result.DurationMs,
	})
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("failed to publish sync event")
	}
}

func fail(result *models.SyncResult, err error) {
	result.Success = false
	result.RecordsFetched = 0
	result.RecordsInserted = 0
	result.RecordsUpdated = 0
	result.RecordsSkipped = 0
	result.Errors = append(result.Errors, models.RecordError{Message: err.Error()})
}

func validationFailure(vr models.ValidationResult) error {
	parts := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}
