// Package retention purges connector audit logs past their retention age.
package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrJanitorAlreadyRunning is returned when trying to start a running janitor
	ErrJanitorAlreadyRunning = errors.New("janitor already running")
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 90 * 24 * time.Hour

	lockKey = "retention:connector_logs"
)

// LogPurger deletes audit entries created before cutoff.
type LogPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Locker keeps concurrent janitors in different processes from racing.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Config holds configuration for the janitor
type Config struct {
	// Interval is how often expired logs are purged.
	Interval time.Duration
	// Retention is the age after which a log is deleted.
	Retention time.Duration
}

// Janitor periodically deletes expired connector logs.
type Janitor struct {
	logs   LogPurger
	locker Locker
	config Config
	logger ectologger.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewJanitor creates a janitor. locker may be nil.
func NewJanitor(logs LogPurger, locker Locker, config Config, logger ectologger.Logger) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	return &Janitor{
		logs:     logs,
		locker:   locker,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start runs one purge immediately and then one per interval until Stop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrJanitorAlreadyRunning
	}
	j.running = true

	j.logger.WithContext(ctx).Infof("Starting retention janitor: interval=%s retention=%s", j.config.Interval, j.config.Retention)
	go j.loop(ctx)
	return nil
}

// Stop waits for the current purge to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopCh)
	select {
	case <-j.stoppedC:
		j.logger.WithContext(ctx).Info("Retention janitor stopped")
	case <-ctx.Done():
		j.logger.WithContext(ctx).Warn("Retention janitor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.stoppedC)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.Purge(ctx)
	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Purge(ctx)
		}
	}
}

// Purge deletes every log older than the retention age and returns the count.
func (j *Janitor) Purge(ctx context.Context) int64 {
	ctx, span := tracing.StartSpan(ctx, "Janitor.Purge")
	defer span.End()

	var deleted int64
	purge := func() error {
		cutoff := j.now().Add(-j.config.Retention)
		n, err := j.logs.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	}

	var err error
	if j.locker != nil {
		err = j.locker.WithLock(ctx, lockKey, j.config.Interval, purge)
	} else {
		err = purge()
	}

	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		j.logger.WithContext(ctx).Debug("Another instance is purging connector logs")
		return 0
	case err != nil:
		tracing.RecordError(span, err)
		j.logger.WithContext(ctx).WithError(err).Error("Failed to purge connector logs")
		return 0
	}

	if deleted > 0 {
		metrics.RetentionDeletedTotal.Add(float64(deleted))
		j.logger.WithContext(ctx).Infof("Purged %d connector logs", deleted)
	}
	return deleted
}
