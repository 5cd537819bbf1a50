// internal/adapters/catalogfile/source.go
package catalogfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

// DefaultDebounce collapses the burst of events an editor or `cp` emits.
const DefaultDebounce = 250 * time.Millisecond

// Source reads the catalog from a JSON array on disk
type Source struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// Statically assert that *Source implements the CatalogSource interface.
var _ ports.CatalogSource = (*Source)(nil)

// New creates a file-backed catalog source. A non-positive debounce uses DefaultDebounce.
func New(path string, debounce time.Duration, logger *slog.Logger) *Source {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Source{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger: logger.With(
			slog.String("source", "file"),
			slog.String("path", path)),
	}
}

// Name identifies the source in logs and reload results
func (s *Source) Name() string {
	return "file"
}

// Path returns the catalog file path
func (s *Source) Path() string {
	return s.path
}

// Load reads and decodes the catalog file
func (s *Source) Load(ctx context.Context) ([]domain.Product, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	var products []domain.Product
	if err := json.NewDecoder(f).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}

	s.logger.DebugContext(ctx, "catalog file read", slog.Int("products", len(products)))
	return products, nil
}

// Watch calls onChange after the catalog file is written, created or renamed
// into place. The parent directory is watched so atomic replaces are seen.
// It blocks until ctx is done.
func (s *Source) Watch(ctx context.Context, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.logger.InfoContext(ctx, "watching catalog file", slog.Duration("debounce", s.debounce))

	var (
		mu    sync.Mutex
		timer *time.Timer
		wg    sync.WaitGroup
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		wg.Add(1)
		timer = time.AfterFunc(s.debounce, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			onChange(ctx)
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.DebugContext(ctx, "catalog file event", slog.String("op", event.Op.String()))
			schedule()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				s.logger.WarnContext(ctx, "watcher overflow, scheduling reload")
				schedule()
				continue
			}
			s.logger.ErrorContext(ctx, "watcher error", slog.String("error", werr.Error()))
		}
	}
}
