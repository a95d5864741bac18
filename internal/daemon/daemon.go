package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/telemetry"
)

// Pipeline is the part of index.Service the daemon drives.
type Pipeline interface {
	Start() error
	Pause(ctx context.Context) error
	Commit(ctx context.Context) error
	Clear(ctx context.Context) error
	Status() index.Status
	AddResourceID(id string, pri index.Priority)
	DeleteResource(id string, pri index.Priority)
	DeleteContainer(containerID string)
	AddRunnable(r index.Runnable, pri index.Priority)
	AddParticipantIDs(ps ...index.Participant)
	Shutdown(ctx context.Context) error
}

// ParticipantLookup answers whether a participant id has been recorded.
type ParticipantLookup interface {
	IsParticipant(ctx context.Context, id string) (bool, error)
}

// Searcher answers search requests against committed documents.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.Hit, error)
	DocCount() (uint64, error)
}

var (
	_ Pipeline          = (*index.Service)(nil)
	_ Searcher          = (*store.BleveEngine)(nil)
	_ ParticipantLookup = (*store.ParticipantStore)(nil)
)

// Options wires a Daemon.
type Options struct {
	Config   Config
	Root     string
	Pipeline Pipeline
	Searcher Searcher
	// Maintenance is queued every Config.MaintenanceInterval (optional).
	Maintenance index.Runnable
	// Metrics is served at /metrics on Config.MetricsAddr (optional).
	Metrics http.Handler
	// Queries records search statistics. Nil keeps them in memory.
	Queries *telemetry.QueryStats
	// Participants answers is_participant (optional).
	Participants ParticipantLookup
}

// Daemon owns a running pipeline and its control socket.
type Daemon struct {
	cfg         Config
	root        string
	pipeline    Pipeline
	searcher    Searcher
	maintenance index.Runnable
	metrics     http.Handler
	queries     *telemetry.QueryStats
	lookup      ParticipantLookup
	pid         *PIDFile
	started     time.Time
}

var _ Handler = (*Daemon)(nil)

// New validates opts and creates a Daemon. Nothing starts until Run.
func New(opts Options) (*Daemon, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if opts.Pipeline == nil || opts.Searcher == nil {
		return nil, errors.New("daemon requires a pipeline and a searcher")
	}
	if opts.Queries == nil {
		opts.Queries = telemetry.New(nil, telemetry.Config{})
	}
	return &Daemon{
		cfg:         opts.Config,
		root:        opts.Root,
		pipeline:    opts.Pipeline,
		searcher:    opts.Searcher,
		maintenance: opts.Maintenance,
		metrics:     opts.Metrics,
		queries:     opts.Queries,
		lookup:      opts.Participants,
		pid:         NewPIDFile(opts.Config.PIDPath),
	}, nil
}

// Run takes the PID lock, starts the pipeline and serves until ctx ends.
// It then shuts the pipeline down, which commits outstanding writes.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pid.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pid.Release(); err != nil {
			slog.Warn("failed to release PID file", slog.String("error", err.Error()))
		}
	}()

	d.started = time.Now()
	if err := d.pipeline.Start(); err != nil {
		return err
	}
	slog.Info("daemon started",
		slog.Int("pid", os.Getpid()),
		slog.String("root", d.root),
		slog.String("socket", d.cfg.SocketPath))

	g, gctx := errgroup.WithContext(ctx)
	srv := NewServer(d.cfg.SocketPath, d, d.cfg)
	g.Go(func() error {
		if err := srv.ListenAndServe(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return d.queries.Run(gctx) })
	if d.cfg.MetricsAddr != "" && d.metrics != nil {
		g.Go(func() error { return d.serveMetrics(gctx) })
	}
	if d.maintenance != nil && d.cfg.MaintenanceInterval > 0 {
		g.Go(func() error {
			d.scheduleMaintenance(gctx)
			return nil
		})
	}

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := d.pipeline.Shutdown(shutdownCtx); err != nil {
		slog.Error("pipeline shutdown failed", slog.String("error", err.Error()))
		if runErr == nil {
			runErr = err
		}
	}
	slog.Info("daemon stopped", slog.Duration("uptime", time.Since(d.started).Round(time.Second)))
	return runErr
}

func (d *Daemon) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics)
	srv := &http.Server{Addr: d.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("metrics listening", slog.String("addr", d.cfg.MetricsAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// scheduleMaintenance queues the maintenance runnable once per interval.
func (d *Daemon) scheduleMaintenance(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Debug("queueing maintenance")
			d.pipeline.AddRunnable(d.maintenance, index.PriorityBackground)
		}
	}
}

// Status implements Handler.
func (d *Daemon) Status(_ context.Context) (StatusResult, error) {
	docs, err := d.searcher.DocCount()
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		Running:   true,
		PID:       os.Getpid(),
		Uptime:    time.Since(d.started).Round(time.Second).String(),
		Root:      d.root,
		Documents: docs,
		Pipeline:  d.pipeline.Status(),
	}, nil
}

// Pause implements Handler.
func (d *Daemon) Pause(ctx context.Context) error { return d.pipeline.Pause(ctx) }

// Resume implements Handler.
func (d *Daemon) Resume(_ context.Context) error { return d.pipeline.Start() }

// Commit implements Handler.
func (d *Daemon) Commit(ctx context.Context) error { return d.pipeline.Commit(ctx) }

// Clear implements Handler.
func (d *Daemon) Clear(ctx context.Context) error { return d.pipeline.Clear(ctx) }

// Enqueue implements Handler.
func (d *Daemon) Enqueue(_ context.Context, ids []string, pri index.Priority) int {
	for _, id := range ids {
		d.pipeline.AddResourceID(id, pri)
	}
	return len(ids)
}

// Delete implements Handler.
func (d *Daemon) Delete(_ context.Context, p DeleteParams, pri index.Priority) int {
	for _, id := range p.IDs {
		d.pipeline.DeleteResource(id, pri)
	}
	n := len(p.IDs)
	if p.Container != "" {
		d.pipeline.DeleteContainer(p.Container)
		n++
	}
	return n
}

// Search implements Handler.
func (d *Daemon) Search(ctx context.Context, query string, limit int) ([]store.Hit, error) {
	start := time.Now()
	hits, err := d.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	d.queries.Record(telemetry.QueryEvent{Query: query, Results: len(hits), Latency: time.Since(start), Time: start})
	return hits, nil
}

// Stats implements Handler.
func (d *Daemon) Stats(ctx context.Context, top int) (StatsResult, error) {
	snap, err := d.queries.Snapshot(ctx, top)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Snapshot: snap, ZeroResultPercent: snap.ZeroResultPercent()}, nil
}

// AddParticipants implements Handler. The ids are stored once the run queue next drains.
func (d *Daemon) AddParticipants(_ context.Context, p ParticipantsParams) int {
	ps := make([]index.Participant, 0, len(p.IDs))
	for _, id := range p.IDs {
		ps = append(ps, index.Participant{Container: p.Container, ParticipantID: id})
	}
	d.pipeline.AddParticipantIDs(ps...)
	return len(ps)
}

// IsParticipant implements Handler.
func (d *Daemon) IsParticipant(ctx context.Context, id string) (bool, error) {
	if d.lookup == nil {
		return false, errors.New("participant lookup is not configured")
	}
	return d.lookup.IsParticipant(ctx, id)
}
