package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/index"
	"github.com/starford/kbsync/internal/kbservice"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
	"github.com/starford/kbsync/internal/transform"
)

var errConfigRequired = errors.New("config is required")

// readinessPartition is listed by the readiness probe.
var readinessPartition = classify.Partitions()[0]

// pipeline holds the wired components shared by every entry point.
type pipeline struct {
	svc   *kbservice.Service
	store storage.Provider
	fs    *storage.FS // nil unless the fs driver is selected
	local *index.Local
	jobs  *transform.Manager
}

func (p *pipeline) Close() {
	p.jobs.Close()
	if p.local != nil {
		_ = p.local.Close()
	}
}

// newLogger builds the JSON logger. The MCP server owns stdout, so it logs
// to stderr.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildPipeline(cfg *Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}

	switch cfg.Storage.Driver {
	case StorageSupabase:
		opts := []storage.SupabaseOption{storage.WithMaxRetries(cfg.Storage.Supabase.MaxRetries)}
		if cfg.Storage.PublicBaseURL != "" {
			opts = append(opts, storage.WithPublicURLBase(cfg.Storage.PublicBaseURL))
		}
		p.store = storage.NewSupabase(cfg.Storage.Supabase.URL, cfg.Storage.Supabase.ServiceKey, opts...)
	default:
		if err := os.MkdirAll(cfg.Storage.FS.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		opts := []storage.FSOption{storage.WithAllowedExtensions(cfg.Storage.AllowedExtensions)}
		if cfg.Storage.PublicBaseURL != "" {
			opts = append(opts, storage.WithPublicBaseURL(cfg.Storage.PublicBaseURL))
		}
		fs, err := storage.NewFS(cfg.Storage.FS.Root, opts...)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		p.store, p.fs = fs, fs
	}

	var idx index.Synchronizer
	switch cfg.Index.Driver {
	case IndexRemote:
		idx = index.NewRemote(cfg.Index.Remote.URL,
			index.WithRemoteToken(cfg.Index.Remote.Token),
			index.WithRemoteRetries(cfg.Index.Remote.MaxRetries),
			index.WithRemoteLogger(logger))
	default:
		zone, err := cfg.Index.Location()
		if err != nil {
			return nil, fmt.Errorf("index time zone: %w", err)
		}
		opts := []index.LocalOption{index.WithTimeZone(zone), index.WithLogger(logger)}
		if cfg.Index.Embed.Enabled() {
			emb, err := index.NewEmbedder(cfg.Index.Embed.Host, cfg.Index.Embed.Model, cfg.Index.Embed.Token)
			if err != nil {
				return nil, fmt.Errorf("init embedder: %w", err)
			}
			opts = append(opts, index.WithEmbedder(emb))
		}
		local, err := index.OpenLocal(cfg.Index.SQLite.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		p.local, idx = local, local
	}

	trigger := transform.NewHTTPTrigger(cfg.Transform.TriggerURL,
		transform.WithTriggerToken(cfg.Transform.Token))
	poller := transform.NewPoller(p.store,
		transform.WithInterval(cfg.Transform.PollInterval),
		transform.WithTimeout(cfg.Transform.Timeout),
		transform.WithClockSkew(cfg.Transform.ClockSkew),
		transform.WithPollerLogger(logger))
	p.jobs = transform.NewManager(trigger, poller,
		transform.WithManagerLogger(logger),
		transform.WithOnDone(func(j transform.Job) {
			if j.Status != models.JobSucceeded {
				logger.Warn("transform: job finished",
					slog.String("job", j.ID),
					slog.String("status", string(j.Status)),
					slog.String("error", j.Error))
			}
		}))

	opts := []kbservice.Option{
		kbservice.WithLocations(cfg.Notes.Locations),
		kbservice.WithHidden(cfg.Catalog.Hidden),
		kbservice.WithWorkers(cfg.Index.Workers),
		kbservice.WithLogger(logger),
	}
	if p.local != nil {
		opts = append(opts, kbservice.WithSearcher(p.local))
	}
	p.svc = kbservice.New(p.store, idx, p.jobs, opts...)
	return p, nil
}
