package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
)

// Defaults for polling the store.
const (
	DefaultInterval = 4 * time.Second
	DefaultTimeout  = 4 * time.Minute
)

// TimeoutGuidance is attached to timeout errors.
const TimeoutGuidance = "the conversion job may still complete; check the job runner logs and refresh the catalog"

// Poller watches a partition for a fresh object with an expected name.
type Poller struct {
	lister   storage.Lister
	clock    Clock
	interval time.Duration
	timeout  time.Duration
	skew     time.Duration
	logger   *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock injects the time source.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithInterval sets the wait between listings.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout bounds the total wait.
func WithTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClockSkew tolerates a store clock running behind ours by d.
func WithClockSkew(d time.Duration) PollerOption {
	return func(p *Poller) { p.skew = d }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller over lister.
func NewPoller(lister storage.Lister, opts ...PollerOption) *Poller {
	p := &Poller{
		lister:   lister,
		clock:    SystemClock(),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fresh returns the object named expected whose store timestamp is not
// before cutoff. Stale objects left by earlier runs never match.
func Fresh(objs []storage.ObjectInfo, expected string, cutoff time.Time) (storage.ObjectInfo, bool) {
	for _, o := range objs {
		if o.Name == expected && !o.Timestamp().Before(cutoff) {
			return o, true
		}
	}
	return storage.ObjectInfo{}, false
}

// Poll lists p every interval until a fresh expected object appears, the
// timeout passes (apperr timeout error) or ctx ends (ctx.Err()). Listing
// failures are logged and polling continues.
func (p *Poller) Poll(ctx context.Context, part models.Partition, expected string, cutoff time.Time) (storage.ObjectInfo, error) {
	deadline := p.clock.Now().Add(p.timeout)
	threshold := cutoff.Add(-p.skew)
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return storage.ObjectInfo{}, ctx.Err()
		case <-p.clock.After(p.interval):
		}
		attempts++

		objs, err := p.lister.List(ctx, part)
		if err != nil {
			if ctx.Err() != nil {
				return storage.ObjectInfo{}, ctx.Err()
			}
			p.logger.Warn("transform: poll list failed",
				slog.String("partition", part.String()),
				slog.String("error", err.Error()))
		} else if o, ok := Fresh(objs, expected, threshold); ok {
			p.logger.Info("transform: output found",
				slog.String("path", part.QualifiedPath(expected)),
				slog.Int("attempts", attempts))
			return o, nil
		}

		if !p.clock.Now().Before(deadline) {
			return storage.ObjectInfo{}, apperr.New(apperr.KindTimeout, "poll", part.QualifiedPath(expected),
				fmt.Sprintf("no fresh output after %s (%d checks); %s", p.timeout, attempts, TimeoutGuidance))
		}
	}
}
