package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SyncConfig configures a Syncer.
type SyncConfig struct {
	// Root is the local directory patterns are relative to.
	Root string
	// Patterns are doublestar globs such as "src/**/*.js" or ".env".
	Patterns []string
	Store    FileStore
	// Debounce is how long changes accumulate before a watch push.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Syncer uploads local files to a dev server, once or on every change.
type Syncer struct {
	cfg    SyncConfig
	logger *zap.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

func NewSyncer(cfg SyncConfig) (*Syncer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sync: file store is required")
	}
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("sync: at least one pattern is required")
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("sync: invalid pattern %q", p)
		}
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{cfg: cfg, logger: logger, pending: make(map[string]struct{})}, nil
}

// Push uploads every regular file matching the patterns and returns their
// remote paths in sorted order.
func (s *Syncer) Push(ctx context.Context) ([]string, error) {
	fsys := os.DirFS(s.cfg.Root)
	set := map[string]struct{}{}
	for _, pattern := range s.cfg.Patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("sync: glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			set[m] = struct{}{}
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if err := s.pushOne(ctx, rel); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func (s *Syncer) pushOne(ctx context.Context, rel string) error {
	content, err := os.ReadFile(filepath.Join(s.cfg.Root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("sync: read %s: %w", rel, err)
	}
	if err := s.cfg.Store.WriteFile(ctx, rel, string(content)); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	s.logger.Info("file pushed", zap.String("path", rel), zap.Int("bytes", len(content)))
	return nil
}

func (s *Syncer) matches(rel string) bool {
	for _, p := range s.cfg.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Watch pushes matching files whenever they change until ctx is done.
// Failed pushes are logged and retried on the next change.
func (s *Syncer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := s.addWatches(w); err != nil {
		return err
	}
	s.logger.Info("watching for changes", zap.String("root", s.cfg.Root), zap.Strings("patterns", s.cfg.Patterns))

	ticker := time.NewTicker(s.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Syncer) addWatches(w *fsnotify.Watcher) error {
	return filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.cfg.Root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

func (s *Syncer) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(event.Name)) {
				if err := w.Add(event.Name); err != nil {
					s.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				}
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	rel, err := filepath.Rel(s.cfg.Root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !s.matches(rel) {
		return
	}
	s.pendingMu.Lock()
	s.pending[rel] = struct{}{}
	s.pendingMu.Unlock()
}

func (s *Syncer) flush(ctx context.Context) {
	s.pendingMu.Lock()
	if len(s.pending) == 0 {
		s.pendingMu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make(map[string]struct{})
	s.pendingMu.Unlock()

	for rel := range batch {
		if err := s.pushOne(ctx, rel); err != nil {
			s.logger.Warn("push failed", zap.String("path", rel), zap.Error(err))
		}
	}
}
