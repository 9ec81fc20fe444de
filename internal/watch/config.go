package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/config"
)

// ConfigWatcher reloads config.json when it changes on disk.
type ConfigWatcher struct {
	baseDir  string
	apply    func(*config.Config)
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewConfigWatcher watches baseDir for changes to the config file. The
// directory is watched rather than the file so editors that replace the
// file on save are still seen.
func NewConfigWatcher(baseDir string, apply func(*config.Config), logger *zap.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(baseDir); err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{
		baseDir:  baseDir,
		apply:    apply,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		watcher:  w,
	}, nil
}

// Run handles events until ctx is done, then closes the underlying watcher.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()

	target := filepath.Clean(config.Path(cw.baseDir))
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			timerC = timer.C

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Warn("config watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			cw.reload()
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := config.Load(cw.baseDir)
	if err != nil {
		cw.logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
		return
	}
	cw.logger.Info("config reloaded")
	cw.apply(cfg)
}
