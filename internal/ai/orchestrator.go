// Package ai routes per-item text actions to locally hosted models by
// capability and assesses item sensitivity.
package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/whispr/internal/classify"
	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/item"
)

// State is the discovery state.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateReady       State = "ready"
	StateError       State = "error"
)

var (
	// ErrAlreadyProcessing is returned by Submit for an item with a request in flight.
	ErrAlreadyProcessing = errors.New("item is already being processed")
	ErrUnknownCapability = errors.New("unknown capability")
	ErrUnknownModel      = errors.New("model is not installed")
	ErrUnknownAction     = errors.New("unknown action")
)

// MappingStore persists the capability mapping.
type MappingStore interface {
	LoadMapping(ctx context.Context) (map[string]string, error)
	SaveMapping(ctx context.Context, mapping map[string]string) error
}

// SQLMappingStore keeps the mapping in the settings table.
type SQLMappingStore struct {
	DB *sql.DB
}

// LoadMapping implements MappingStore.
func (s *SQLMappingStore) LoadMapping(ctx context.Context) (map[string]string, error) {
	m := map[string]string{}
	if _, err := db.GetJSONSetting(ctx, s.DB, db.KeyCapabilityMapping, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveMapping implements MappingStore.
func (s *SQLMappingStore) SaveMapping(ctx context.Context, mapping map[string]string) error {
	return db.PutJSONSetting(ctx, s.DB, db.KeyCapabilityMapping, mapping)
}

// Options configures an Orchestrator.
type Options struct {
	Backend Backend
	Store   MappingStore
	Config  *config.Config
	Logger  *zap.Logger
}

// Orchestrator owns the discovered model registry and the capability
// mapping, and dispatches generate requests.
type Orchestrator struct {
	backend Backend
	store   MappingStore
	logger  *zap.Logger

	maxTokens   int
	temperature float64
	language    string
	timeout     time.Duration

	mu        sync.RWMutex
	models    []item.AIModel
	mapping   map[string]string
	state     State
	connected bool
	lastErr   error

	discovery singleflight.Group

	// persistMu is held from a mapping change through its save, so saves
	// land in the same order as the changes.
	persistMu sync.Mutex

	// inflight holds item ids with an outstanding Submit.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
	wg         sync.WaitGroup
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// New creates an orchestrator in the idle state.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend:     opts.Backend,
		store:       opts.Store,
		logger:      opts.Logger,
		maxTokens:   cfg.MaxOutputTokens,
		temperature: cfg.Temperature,
		language:    cfg.TargetLanguage,
		timeout:     timeout,
		mapping:     map[string]string{},
		state:       StateIdle,
		inflight:    map[string]struct{}{},
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// SetTargetLanguage changes the language used by the translate capability.
func (o *Orchestrator) SetTargetLanguage(lang string) {
	o.mu.Lock()
	o.language = strings.TrimSpace(lang)
	o.mu.Unlock()
}

// LoadMapping restores the persisted capability mapping.
func (o *Orchestrator) LoadMapping(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	m, err := o.store.LoadMapping(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.mapping = m
	o.mu.Unlock()
	return nil
}

// Discover refreshes the model registry. Concurrent calls share one request.
// On failure the previous registry is kept and the state becomes error.
func (o *Orchestrator) Discover(ctx context.Context) ([]item.AIModel, error) {
	res, err, _ := o.discovery.Do("discover", func() (any, error) {
		return o.discover(ctx)
	})
	if err != nil {
		return nil, err
	}
	return cloneModels(res.([]item.AIModel)), nil
}

func (o *Orchestrator) discover(ctx context.Context) ([]item.AIModel, error) {
	o.mu.Lock()
	o.state = StateDiscovering
	o.mu.Unlock()

	infos, err := o.backend.ListModels(ctx)
	if err != nil {
		o.mu.Lock()
		o.state = StateError
		o.connected = false
		o.lastErr = err
		o.mu.Unlock()
		o.logger.Warn("model discovery failed", zap.Error(err))
		return nil, err
	}

	models := make([]item.AIModel, 0, len(infos))
	seen := map[string]bool{}
	for _, info := range infos {
		if info.Name == "" || seen[info.Name] {
			continue
		}
		seen[info.Name] = true
		models = append(models, describeModel(info))
	}

	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	o.models = models
	mapping := fallbackMapping(o.mapping, models)
	o.mapping = mapping
	o.state = StateReady
	o.connected = true
	o.lastErr = nil
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.SaveMapping(ctx, cloneMapping(mapping)); err != nil {
			o.logger.Warn("failed to persist capability mapping", zap.Error(err))
		}
	}
	o.logger.Info("model discovery complete", zap.Int("models", len(models)))
	return models, nil
}

// RunDiscovery discovers once, then again every interval while the last
// attempt failed. It returns when ctx is done.
func (o *Orchestrator) RunDiscovery(ctx context.Context, interval time.Duration) {
	if _, err := o.Discover(ctx); err == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Discover(ctx); err == nil {
				return
			}
		}
	}
}

// fallbackMapping points every capability whose mapping is absent or stale
// at the first discovered model. An empty registry leaves the mapping alone.
func fallbackMapping(current map[string]string, models []item.AIModel) map[string]string {
	out := cloneMapping(current)
	if len(models) == 0 {
		return out
	}
	for _, c := range Capabilities {
		if name, ok := out[c]; ok && hasModel(models, name) {
			continue
		}
		out[c] = models[0].Name
	}
	return out
}

func hasModel(models []item.AIModel, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

// SetMapping assigns model to capability and persists the mapping.
func (o *Orchestrator) SetMapping(ctx context.Context, capability, model string) error {
	if !IsCapability(capability) {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	if !hasModel(o.models, model) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	o.mapping[capability] = model
	snapshot := cloneMapping(o.mapping)
	o.mu.Unlock()

	if o.store == nil {
		return nil
	}
	return o.store.SaveMapping(ctx, snapshot)
}

// ClearMapping removes the assignment for capability.
func (o *Orchestrator) ClearMapping(ctx context.Context, capability string) error {
	if !IsCapability(capability) {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	delete(o.mapping, capability)
	snapshot := cloneMapping(o.mapping)
	o.mu.Unlock()

	if o.store == nil {
		return nil
	}
	return o.store.SaveMapping(ctx, snapshot)
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State     State             `json:"state"`
	Connected bool              `json:"connected"`
	Models    []item.AIModel    `json:"models"`
	Mapping   map[string]string `json:"mapping"`
	LastError string            `json:"last_error,omitempty"`
}

// Status returns the current registry, mapping and connectivity.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := Status{
		State:     o.state,
		Connected: o.connected,
		Models:    cloneModels(o.models),
		Mapping:   cloneMapping(o.mapping),
	}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	return s
}

// Models returns the registry.
func (o *Orchestrator) Models() []item.AIModel {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneModels(o.models)
}

// Mapping returns the capability mapping.
func (o *Orchestrator) Mapping() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneMapping(o.mapping)
}

// assigned returns the mapped model for capability if it is installed.
func (o *Orchestrator) assigned(capability string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	name, ok := o.mapping[capability]
	if !ok || !hasModel(o.models, name) {
		return "", false
	}
	return name, true
}

// Run performs action on content and returns the trimmed model output.
// Errors wrap ErrNoModelAssigned or ErrRequestFailed.
func (o *Orchestrator) Run(ctx context.Context, content, action string) (string, error) {
	capability, ok := CapabilityFor(action)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	model, ok := o.assigned(capability)
	if !ok {
		return "", fmt.Errorf("%w to %s", ErrNoModelAssigned, capability)
	}

	o.mu.RLock()
	lang := o.language
	o.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	out, err := o.backend.Generate(ctx, GenerateRequest{
		Model:  model,
		Prompt: buildPrompt(capability, content, lang),
		Options: GenerateOptions{
			MaxTokens:   o.maxTokens,
			NumPredict:  o.maxTokens,
			Temperature: o.temperature,
		},
	})
	o.mu.Lock()
	o.connected = err == nil
	o.mu.Unlock()
	if err != nil {
		o.logger.Warn("AI request failed",
			zap.String("action", action),
			zap.String("model", model),
			zap.Error(err))
		if !errors.Is(err, ErrRequestFailed) {
			err = fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Process is Run with errors folded into a readable message, so callers can
// always attach the returned text to the item.
func (o *Orchestrator) Process(ctx context.Context, it *item.Item, action string) string {
	out, err := o.Run(ctx, it.Content, action)
	if err == nil {
		return out
	}
	capability, _ := CapabilityFor(action)
	switch {
	case errors.Is(err, ErrNoModelAssigned):
		return fmt.Sprintf("No model is assigned to %s. Discover models or map one in settings.", capability)
	case errors.Is(err, ErrRequestFailed):
		return "AI request failed: the local inference server did not answer. Check that it is running."
	default:
		return "AI request failed: " + err.Error()
	}
}

// Submit runs Process on a background goroutine and calls done with the
// result. An item may have only one request outstanding.
func (o *Orchestrator) Submit(it *item.Item, action string, done func(result string)) error {
	o.inflightMu.Lock()
	if _, busy := o.inflight[it.ID]; busy {
		o.inflightMu.Unlock()
		return ErrAlreadyProcessing
	}
	o.inflight[it.ID] = struct{}{}
	o.inflightMu.Unlock()

	snap := it.Clone()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		result := o.Process(o.baseCtx, snap, action)

		o.inflightMu.Lock()
		delete(o.inflight, snap.ID)
		o.inflightMu.Unlock()

		if done != nil {
			done(result)
		}
	}()
	return nil
}

// Busy reports whether itemID has a request outstanding.
func (o *Orchestrator) Busy(itemID string) bool {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	_, ok := o.inflight[itemID]
	return ok
}

// Wait blocks until every submitted request has completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels outstanding requests and waits for them to return.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// ProcessAdvanced resolves the model that would serve each capability and
// combines it with the risk assessment. It makes no network calls.
func (o *Orchestrator) ProcessAdvanced(it *item.Item) *item.AIProcessingResult {
	o.mu.RLock()
	models := cloneModels(o.models)
	mapping := cloneMapping(o.mapping)
	o.mu.RUnlock()

	risk := AssessRisk(it)
	res := &item.AIProcessingResult{
		ModelsDetected:    models,
		CapabilityMapping: mapping,
		ModelsUsed:        map[string]string{},
		RiskLevel:         risk.RiskLevel,
		RewriteAllowed:    risk.RewriteAllowed,
		NoModelAvailable:  len(models) == 0,
		Suggestions:       []string{},
	}

	for _, c := range Capabilities {
		if name, ok := resolve(c, mapping, models); ok {
			res.ModelsUsed[c] = name
		} else {
			res.FeatureSkipped = true
		}
	}

	res.Classification = classification(it, risk)
	res.IntentGuess = intentGuess(it, risk)
	if risk.RiskLevel != item.RiskHigh {
		for _, a := range Actions {
			c := actionCapability[a]
			if _, ok := res.ModelsUsed[c]; ok {
				res.Suggestions = append(res.Suggestions, a)
			}
		}
	}
	return res
}

// resolve picks the mapped model if installed, else the first model that
// advertises the capability.
func resolve(capability string, mapping map[string]string, models []item.AIModel) (string, bool) {
	if name, ok := mapping[capability]; ok && hasModel(models, name) {
		return name, true
	}
	for _, m := range models {
		if m.Supports(capability) {
			return m.Name, true
		}
	}
	return "", false
}

func classification(it *item.Item, risk Assessment) []string {
	tags := []string{string(it.Type)}
	if name, ok := classify.DetectNetwork(it.Content); ok {
		tags = append(tags, strings.ToLower(name))
	}
	if risk.RiskLevel == item.RiskHigh {
		tags = append(tags, "sensitive")
	}
	return tags
}

func intentGuess(it *item.Item, risk Assessment) string {
	switch {
	case it.Type == item.TypeCreditCard || classify.IsCreditCard(it.Content):
		return "payment card"
	case risk.RiskLevel == item.RiskHigh:
		return "credential"
	case it.Type == item.TypeLink:
		return "link"
	case it.Type == item.TypeCode:
		return "code"
	case it.Type == item.TypeImage:
		return "image"
	default:
		return "text"
	}
}

func cloneModels(models []item.AIModel) []item.AIModel {
	out := make([]item.AIModel, len(models))
	for i, m := range models {
		m.Capabilities = append([]string(nil), m.Capabilities...)
		out[i] = m
	}
	return out
}

func cloneMapping(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
