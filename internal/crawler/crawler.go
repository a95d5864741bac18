// Package crawler discovers files under a root directory and feeds them to
// the indexing service, once or continuously through fsnotify.
package crawler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/resource"
)

// Submitter is the part of the indexing service the crawler feeds.
type Submitter interface {
	AddResourceID(id string, pri index.Priority)
	DeleteResource(id string, pri index.Priority)
	IsBusy() bool
}

// PathIndex tracks when crawled paths were last indexed.
type PathIndex interface {
	LastIndexed(ctx context.Context, path string) (time.Time, bool, error)
	PathsUnder(ctx context.Context, dir string) ([]string, error)
	Forget(ctx context.Context, path string) error
}

// Options configures a Crawler.
type Options struct {
	// Excludes are gitignore-style patterns applied on top of .gitignore files.
	Excludes []string
	// DebounceWindow coalesces bursts of file changes. Default: 200ms
	DebounceWindow time.Duration
	// RescanInterval is how often the tree is re-walked when fsnotify is unavailable. Default: 30s
	RescanInterval time.Duration
	// BusyWait is how long to sleep while the service reports busy. Default: 250ms
	BusyWait time.Duration
}

// DefaultExcludes are always skipped.
var DefaultExcludes = []string{".git/", ".ftsindex/"}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.RescanInterval <= 0 {
		o.RescanInterval = 30 * time.Second
	}
	if o.BusyWait <= 0 {
		o.BusyWait = 250 * time.Millisecond
	}
	return o
}

// Stats summarizes one walk.
type Stats struct {
	Submitted int `json:"submitted"`
	Unchanged int `json:"unchanged"`
	Excluded  int `json:"excluded"`
}

// Crawler walks the resolver's root and submits "file:" identifiers at PriorityCrawl.
type Crawler struct {
	sub   Submitter
	files *resource.FileResolver
	paths PathIndex
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	excludes *excludeRules
	watching bool
}

var _ index.Crawler = (*Crawler)(nil)

// New creates a crawler over files' root. paths may be nil, in which case
// every file is submitted on every walk.
func New(sub Submitter, files *resource.FileResolver, paths PathIndex, opts Options) *Crawler {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Crawler{
		sub:    sub,
		files:  files,
		paths:  paths,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.reloadExcludes()
	return c
}

// AddPathToCrawl walks path in the background. Relative paths are taken from the root.
func (c *Crawler) AddPathToCrawl(path string) {
	c.goDo(func(ctx context.Context) {
		if _, err := c.Crawl(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("crawl failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	})
}

// StartContinuous walks path and then keeps watching it. Calling it again
// while already watching only re-walks, picking up anything missed while paused.
func (c *Crawler) StartContinuous(path string) {
	c.mu.Lock()
	already := c.watching
	c.watching = true
	c.mu.Unlock()

	if already {
		c.AddPathToCrawl(path)
		return
	}
	c.goDo(func(ctx context.Context) {
		if err := c.watch(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("crawler watch stopped", slog.String("path", path), slog.String("error", err.Error()))
		}
	})
}

// Close stops background walks and watching, and waits for them to return.
func (c *Crawler) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Crawler) goDo(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// Crawl walks path synchronously, submitting every new or changed file.
func (c *Crawler) Crawl(ctx context.Context, path string) (Stats, error) {
	start, err := c.abs(path)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unreadable path", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := c.files.Rel(p)
		if err != nil || rel == "." {
			return nil
		}
		if c.excluded(rel, d.IsDir()) {
			stats.Excluded++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if c.unchanged(ctx, rel, info.ModTime()) {
			stats.Unchanged++
			return nil
		}
		if err := c.submit(ctx, rel); err != nil {
			return err
		}
		stats.Submitted++
		return nil
	})

	slog.Info("crawl finished",
		slog.String("path", start),
		slog.Int("submitted", stats.Submitted),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("excluded", stats.Excluded))
	return stats, err
}

func (c *Crawler) abs(path string) (string, error) {
	if path == "" {
		return c.files.Root(), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.files.Root(), path)
	}
	if _, err := c.files.Rel(path); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Crawler) unchanged(ctx context.Context, rel string, mod time.Time) bool {
	if c.paths == nil {
		return false
	}
	last, ok, err := c.paths.LastIndexed(ctx, rel)
	if err != nil || !ok {
		return false
	}
	return !mod.After(last)
}

// submit waits while the service is busy, then queues rel.
func (c *Crawler) submit(ctx context.Context, rel string) error {
	if err := c.waitIdle(ctx); err != nil {
		return err
	}
	c.sub.AddResourceID(resource.Identifier(rel), index.PriorityCrawl)
	return nil
}

func (c *Crawler) waitIdle(ctx context.Context) error {
	for c.sub.IsBusy() {
		timer := time.NewTimer(c.opts.BusyWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// remove deletes rel and every tracked file below it from the index.
func (c *Crawler) remove(ctx context.Context, rel string) {
	targets := []string{rel}
	if c.paths != nil {
		under, err := c.paths.PathsUnder(ctx, rel)
		if err != nil {
			slog.Warn("failed to list removed paths", slog.String("path", rel), slog.String("error", err.Error()))
		}
		for _, p := range under {
			if p != rel {
				targets = append(targets, p)
			}
		}
	}

	for _, p := range targets {
		c.sub.DeleteResource(resource.Identifier(p), index.PriorityCrawl)
	}
	if c.paths != nil {
		if err := c.paths.Forget(ctx, rel); err != nil {
			slog.Warn("failed to forget removed path", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
}

// sweep removes tracked paths whose files are gone. Used when changes are
// found by rescanning rather than by events.
func (c *Crawler) sweep(ctx context.Context) {
	if c.paths == nil {
		return
	}
	tracked, err := c.paths.PathsUnder(ctx, "")
	if err != nil {
		slog.Warn("failed to list tracked paths", slog.String("error", err.Error()))
		return
	}
	for _, rel := range tracked {
		if _, err := os.Stat(filepath.Join(c.files.Root(), rel)); os.IsNotExist(err) {
			c.remove(ctx, rel)
		}
	}
}

func (c *Crawler) excluded(rel string, isDir bool) bool {
	c.mu.Lock()
	x := c.excludes
	c.mu.Unlock()
	return x.match(rel, isDir)
}

// reloadExcludes rebuilds the rules from the configured patterns and every
// .gitignore under the root.
func (c *Crawler) reloadExcludes() {
	x := newExcludeRules(DefaultExcludes...)
	for _, p := range c.opts.Excludes {
		x.add(p, "")
	}

	root := c.files.Root()
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if rel, _ := filepath.Rel(root, p); rel != "." && x.match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, _ := filepath.Rel(root, filepath.Dir(p))
		if err := x.addFile(p, base); err != nil {
			slog.Warn("failed to read .gitignore", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})

	c.mu.Lock()
	c.excludes = x
	c.mu.Unlock()
}

// watch walks path, then applies fsnotify changes until ctx ends. Without
// fsnotify it falls back to rescanning on an interval.
func (c *Crawler) watch(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to rescans", slog.String("error", err.Error()))
		return c.rescanLoop(ctx, path)
	}
	defer func() { _ = fsw.Close() }()

	start, err := c.abs(path)
	if err != nil {
		return err
	}
	// watch before walking so nothing created during the walk is missed
	c.addWatches(fsw, start)
	if _, err := c.Crawl(ctx, path); err != nil {
		return err
	}
	c.sweep(ctx)

	deb := newDebouncer(c.opts.DebounceWindow)
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			c.onEvent(fsw, deb, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		case batch := <-deb.output():
			c.apply(ctx, fsw, batch)
		}
	}
}

func (c *Crawler) rescanLoop(ctx context.Context, path string) error {
	ticker := time.NewTicker(c.opts.RescanInterval)
	defer ticker.Stop()

	for {
		if _, err := c.Crawl(ctx, path); err != nil {
			return err
		}
		c.sweep(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Crawler) addWatches(fsw *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, relErr := c.files.Rel(p); relErr == nil && rel != "." && c.excluded(rel, true) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			slog.Warn("failed to watch directory", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (c *Crawler) onEvent(fsw *fsnotify.Watcher, deb *debouncer, ev fsnotify.Event) {
	rel, err := c.files.Rel(ev.Name)
	if err != nil || rel == "." {
		return
	}

	var op changeOp
	switch {
	case ev.Has(fsnotify.Create):
		op = opCreate
	case ev.Has(fsnotify.Write):
		op = opModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = opDelete
	default:
		return
	}
	deb.add(change{rel: rel, op: op})
}

// apply turns a debounced batch into submissions and deletions.
func (c *Crawler) apply(ctx context.Context, fsw *fsnotify.Watcher, batch []change) {
	for _, ch := range batch {
		if filepath.Base(ch.rel) == ".gitignore" {
			c.reloadExcludes()
			c.AddPathToCrawl("")
			continue
		}

		if ch.op == opDelete {
			c.remove(ctx, ch.rel)
			continue
		}

		abs := filepath.Join(c.files.Root(), ch.rel)
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if c.excluded(ch.rel, info.IsDir()) {
			continue
		}
		if info.IsDir() {
			c.addWatches(fsw, abs)
			c.AddPathToCrawl(ch.rel)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := c.submit(ctx, ch.rel); err != nil {
			return
		}
	}
}
