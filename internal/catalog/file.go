package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Proton-105/storefront-bot/internal/discount"
)

// FileProvider serves a catalog loaded from a YAML file and can reload it when
// the file changes. Each call reads a consistent snapshot.
type FileProvider struct {
	path    string
	current atomic.Pointer[Static]
	log     *slog.Logger
}

var _ Provider = (*FileProvider)(nil)

// Load reads and validates the catalog file at path.
func Load(path string, log *slog.Logger) (*FileProvider, error) {
	if log == nil {
		log = slog.Default()
	}

	p := &FileProvider{path: path, log: log}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse decodes and validates catalog YAML.
func Parse(raw []byte) (Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("decode catalog: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(data); err != nil {
		return Data{}, fmt.Errorf("validate catalog: %w", err)
	}
	data.Discounts = data.Discounts.Normalized()

	return data, nil
}

// Watch reloads the catalog whenever the file is written, until ctx is cancelled.
// A reload that fails validation keeps the previous snapshot.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watch catalog dir: %w", err)
	}

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("catalog watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.reload(); err != nil {
				p.log.Error("catalog reload failed, keeping previous snapshot", slog.String("path", p.path), slog.Any("error", err))
				continue
			}
			p.log.Info("catalog reloaded", slog.String("path", p.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Warn("catalog watcher error", slog.Any("error", err))
		}
	}
}

func (p *FileProvider) reload() error {
	// #nosec G304: catalog path comes from deployment config
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read catalog %q: %w", p.path, err)
	}

	data, err := Parse(raw)
	if err != nil {
		return err
	}

	p.current.Store(NewStatic(data))
	return nil
}

func (p *FileProvider) snapshot() *Static {
	return p.current.Load()
}

func (p *FileProvider) Regions() []Option                  { return p.snapshot().Regions() }
func (p *FileProvider) Cities(region string) []Option      { return p.snapshot().Cities(region) }
func (p *FileProvider) Categories() []string               { return p.snapshot().Categories() }
func (p *FileProvider) Products(category string) []Product { return p.snapshot().Products(category) }
func (p *FileProvider) Currencies() []Currency             { return p.snapshot().Currencies() }
func (p *FileProvider) DeliveryMethods() []DeliveryMethod  { return p.snapshot().DeliveryMethods() }
func (p *FileProvider) Discounts() discount.Table          { return p.snapshot().Discounts() }
