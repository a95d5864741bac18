package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/ftsindex/internal/config"
	"github.com/Aman-CERP/ftsindex/internal/crawler"
	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/metrics"
	"github.com/Aman-CERP/ftsindex/internal/resource"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/telemetry"
)

// project is the resolved project root and its configuration.
type project struct {
	root string
	cfg  *config.Config
}

func loadProject() (*project, error) {
	root, err := config.FindProjectRoot(projectDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg}, nil
}

func (p *project) dataDir() string { return p.cfg.DataPath(p.root) }

func (p *project) daemonConfig() daemon.Config {
	dc := daemon.DefaultConfig(p.dataDir())
	dc.SocketPath = p.cfg.SocketPath(p.root)
	dc.MetricsAddr = p.cfg.Server.MetricsAddr
	return dc
}

func (p *project) client() *daemon.Client {
	return daemon.NewClient(p.daemonConfig())
}

// stack is the assembled pipeline for one project.
type stack struct {
	db           *sql.DB
	paths        *store.PathStore
	participants *store.ParticipantStore
	engine       *store.BleveEngine
	metrics      *metrics.Pipeline
	queries      *telemetry.QueryStats
	files        *resource.FileResolver
	crawler      *crawler.Crawler
	svc          *index.Service
}

// openStack opens the on-disk state and wires the service. With watch set
// a crawler runs continuously over the root once the service starts.
func openStack(p *project, watch bool) (_ *stack, err error) {
	s := &stack{metrics: metrics.NewPipeline()}
	defer func() {
		if err != nil {
			s.closeStores()
		}
	}()

	s.db, err = store.OpenSQLite(p.cfg.DatabasePath(p.root))
	if err != nil {
		return nil, err
	}
	if mb := p.cfg.Store.SQLiteCacheMB; mb > 0 {
		if _, err = s.db.Exec(fmt.Sprintf("PRAGMA cache_size = -%d", mb*1024)); err != nil {
			return nil, fmt.Errorf("failed to set sqlite cache size: %w", err)
		}
	}
	if s.paths, err = store.NewPathStore(s.db); err != nil {
		return nil, err
	}
	if s.participants, err = store.NewParticipantStore(s.db); err != nil {
		return nil, err
	}
	queryStore, err := telemetry.NewSQLiteStore(s.db)
	if err != nil {
		return nil, err
	}
	s.queries = telemetry.New(queryStore, telemetry.Config{})
	if s.engine, err = store.OpenBleveEngine(p.cfg.IndexPath(p.root)); err != nil {
		return nil, err
	}
	if s.files, err = resource.NewFileResolver(p.root, s.paths); err != nil {
		return nil, err
	}

	s.svc, err = index.NewService(index.Options{
		Config:          p.cfg.IndexConfig(),
		Engine:          s.engine,
		Preprocessor:    &resource.TextPreprocessor{MaxFileSize: p.cfg.Crawler.MaxFileSize},
		ParticipantSink: s.participants,
		ClearListeners:  []index.ClearListener{s.paths, queryStore},
		Metrics:         s.metrics,
	})
	if err != nil {
		return nil, err
	}
	s.svc.AddResourceResolver(resource.Prefix, s.files)
	s.svc.AddSearchCategory(index.SearchCategory{Name: "file", Description: "Files under the project root"})

	if watch {
		s.crawler = s.newCrawler(p, s.svc)
		s.svc.SetCrawler(s.crawler, p.root)
	}
	return s, nil
}

// newCrawler creates a crawler over the project root feeding sub.
func (s *stack) newCrawler(p *project, sub crawler.Submitter) *crawler.Crawler {
	return crawler.New(sub, s.files, s.paths, crawler.Options{
		Excludes:       p.cfg.Paths.Exclude,
		DebounceWindow: p.cfg.WatchDebounce(),
		RescanInterval: p.cfg.RescanInterval(),
	})
}

// Close stops the crawler, shuts the service down (final commit included)
// and closes the database.
func (s *stack) Close(ctx context.Context) error {
	var errs []error
	if s.crawler != nil {
		errs = append(errs, s.crawler.Close())
	}
	if s.svc != nil {
		errs = append(errs, s.svc.Shutdown(ctx))
		s.engine = nil
	}
	errs = append(errs, s.closeStores())
	return errors.Join(errs...)
}

func (s *stack) closeStores() error {
	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Shutdown(context.Background()))
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("failed to close stores", slog.String("error", err.Error()))
		return err
	}
	return nil
}
