package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/ai"
	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/folders"
	"github.com/hpungsan/whispr/internal/history"
	"github.com/hpungsan/whispr/internal/logging"
	"github.com/hpungsan/whispr/internal/tags"
	"github.com/hpungsan/whispr/internal/vault"
)

// Clipboard receives text copied out of history.
type Clipboard interface {
	Write(text string) error
}

// Options configures an Engine. Nil dependencies get production defaults.
type Options struct {
	BaseDir string
	Config  *config.Config
	DB      *sql.DB

	// KeyStore defaults to a passphrase store when Config.Passphrase is set,
	// else a key file in BaseDir.
	KeyStore vault.KeyStore

	// Backend defaults to an HTTP client for Config.InferenceURL.
	Backend ai.Backend

	// Clipboard is required only by HistoryCopy.
	Clipboard Clipboard

	Logger *zap.Logger
	Now    func() time.Time
}

// Engine wires the stores together and exposes the consumer-facing
// operations. Every surface (CLI, MCP, web) goes through it.
type Engine struct {
	baseDir   string
	db        *sql.DB
	ownsDB    bool
	clipboard Clipboard
	logger    *zap.Logger
	keySource string

	cfgMu sync.RWMutex
	cfg   *config.Config

	history *history.Store
	folders *folders.Store
	tags    *tags.Registry
	vault   *vault.Vault
	ai      *ai.Orchestrator
}

// Open initializes the database in baseDir and builds an engine that owns it.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.DB != nil {
		return New(ctx, opts)
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	database, err := db.Init(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, opts.Config)
	opts.DB = database

	e, err := New(ctx, opts)
	if err != nil {
		database.Close()
		return nil, err
	}
	e.ownsDB = true
	return e, nil
}

// New builds an engine over an initialized database.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("ops: database is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)

	e := &Engine{
		baseDir:   opts.BaseDir,
		db:        opts.DB,
		clipboard: opts.Clipboard,
		logger:    logger,
		cfg:       cfg,
	}

	e.tags = tags.NewRegistry(&tags.SQLStore{DB: opts.DB}, logger.Named("tags"))
	if err := e.tags.Load(ctx); err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	capacity, err := e.persistedCapacity(ctx)
	if err != nil {
		return nil, err
	}
	if capacity == 0 {
		capacity = cfg.HistoryCapacity
	}
	e.history = history.New(history.Options{
		Capacity:  capacity,
		MaxPinned: cfg.MaxPinned,
		Tags:      e.tags,
		Logger:    logger.Named("history"),
		Now:       opts.Now,
	})
	e.tags.OnRename(func(oldTag, newTag string) {
		n := e.history.RenameTag(oldTag, newTag)
		logger.Debug("tag renamed", zap.String("from", oldTag), zap.String("to", newTag), zap.Int("items", n))
	})

	keys := opts.KeyStore
	e.keySource = "custom"
	if keys == nil {
		if cfg.Passphrase != "" {
			keys = &vault.PassphraseKeyStore{Dir: opts.BaseDir, Passphrase: cfg.Passphrase}
			e.keySource = "passphrase"
		} else {
			keys = &vault.FileKeyStore{Dir: opts.BaseDir}
			e.keySource = "file"
		}
	}
	e.vault = vault.New(keys)

	e.folders = folders.New(folders.Options{
		DB:      opts.DB,
		Vault:   e.vault,
		Config:  cfg,
		BaseDir: opts.BaseDir,
		Logger:  logger.Named("folders"),
		Now:     opts.Now,
	})

	backend := opts.Backend
	if backend == nil {
		backend = ai.NewClient(cfg)
	}
	e.ai = ai.New(ai.Options{
		Backend: backend,
		Store:   &ai.SQLMappingStore{DB: opts.DB},
		Config:  cfg,
		Logger:  logger.Named("ai"),
	})
	if err := e.ai.LoadMapping(ctx); err != nil {
		logger.Warn("failed to load capability mapping", zap.Error(err))
	}

	if cfg.ShowWelcome() {
		e.history.SeedWelcome()
	}
	if cfg.Paused {
		e.history.Pause()
	}
	return e, nil
}

// Close waits for outstanding AI requests and closes an owned database.
func (e *Engine) Close() error {
	e.ai.Close()
	if e.ownsDB {
		return e.db.Close()
	}
	return nil
}

// History returns the live history store, for the clipboard poller.
func (e *Engine) History() *history.Store { return e.history }

// AI returns the orchestrator, for the discovery loop.
func (e *Engine) AI() *ai.Orchestrator { return e.ai }

// Config returns the active configuration.
func (e *Engine) Config() *config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Subscribe forwards history change events to fn.
func (e *Engine) Subscribe(fn func(history.Event)) (cancel func()) {
	return e.history.Subscribe(fn)
}

// ApplyConfig swaps in a reloaded configuration. Limits and pause state
// take effect immediately; a capacity chosen through SetCapacity still
// wins over the file.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *config.Config) {
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()

	e.history.SetMaxPinned(cfg.MaxPinned)
	if persisted, err := e.persistedCapacity(ctx); err == nil && persisted == 0 {
		if err := e.history.SetCapacity(cfg.HistoryCapacity); err != nil {
			e.logger.Warn("ignoring configured capacity", zap.Error(err))
		}
	}
	if cfg.Paused {
		e.history.Pause()
	} else {
		e.history.Resume()
	}
	e.ai.SetTargetLanguage(cfg.TargetLanguage)
	e.logger.Info("configuration applied",
		zap.Int("capacity", e.history.Capacity()),
		zap.Int("max_pinned", cfg.MaxPinned),
		zap.Bool("paused", cfg.Paused))
}

// persistedCapacity returns the user-chosen capacity, or 0 when none is stored.
func (e *Engine) persistedCapacity(ctx context.Context) (int, error) {
	raw, ok, err := db.GetSetting(ctx, e.db, db.KeyHistoryCapacity)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Warn("ignoring malformed history capacity setting", zap.String("value", raw))
		return 0, nil
	}
	return config.ClampCapacity(n), nil
}

// mapAIError converts orchestrator sentinels into WhisprErrors.
func mapAIError(err error) error {
	var wErr *errors.WhisprError
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &wErr):
		return err
	case stderrors.Is(err, ai.ErrUnreachable):
		return errors.NewWithCode(errors.ErrDiscoveryUnreachable, 502, err.Error())
	case stderrors.Is(err, ai.ErrBadResponse):
		return errors.NewWithCode(errors.ErrDiscoveryBadResponse, 502, err.Error())
	case stderrors.Is(err, ai.ErrRequestFailed):
		return errors.NewWithCode(errors.ErrRequestFailed, 502, err.Error())
	case stderrors.Is(err, ai.ErrNoModelAssigned):
		return errors.NewWithCode(errors.ErrNoModelAssigned, 422, err.Error())
	case stderrors.Is(err, ai.ErrUnknownCapability), stderrors.Is(err, ai.ErrUnknownAction):
		return errors.NewInvalidRequest(err.Error())
	case stderrors.Is(err, ai.ErrUnknownModel):
		return errors.NewWithCode(errors.ErrNotFound, 404, err.Error())
	case stderrors.Is(err, ai.ErrAlreadyProcessing):
		return errors.NewWithCode(errors.ErrAlreadyProcessing, 409, err.Error())
	default:
		return errors.NewInternal(err)
	}
}
