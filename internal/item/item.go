package item

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ContentType classifies what an item holds.
type ContentType string

const (
	TypeText       ContentType = "text"
	TypeLink       ContentType = "link"
	TypeCode       ContentType = "code"
	TypeImage      ContentType = "image"
	TypeCreditCard ContentType = "creditCard"
)

// Item is a single clipboard entry, either live in history or snapshotted
// into a folder.
type Item struct {
	// ID is a ULID that uniquely identifies this item
	ID string `json:"id"`

	// Content is the trimmed, non-empty text of the entry
	Content string `json:"content"`

	Type ContentType `json:"type"`

	// ImageData is the raw payload of image items (nil otherwise)
	ImageData []byte `json:"image_data,omitempty"`

	// FilePath is an optional file-system reference for image items
	FilePath string `json:"file_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// SourceApp is the best-effort name of the app the content was copied from
	SourceApp string `json:"source_app,omitempty"`

	IsPinned bool `json:"is_pinned"`

	// Tags holds normalized tag strings, kept sorted and unique
	Tags []string `json:"tags,omitempty"`

	AIResult   *string             `json:"ai_result,omitempty"`
	AIAdvanced *AIProcessingResult `json:"ai_advanced,omitempty"`

	IsProcessing bool `json:"is_processing"`

	// Version increases on every mutation of a history item. Async
	// completions compare it to decide whether their result is still wanted.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.ImageData != nil {
		c.ImageData = append([]byte(nil), it.ImageData...)
	}
	if it.Tags != nil {
		c.Tags = append([]string(nil), it.Tags...)
	}
	if it.AIResult != nil {
		s := *it.AIResult
		c.AIResult = &s
	}
	if it.AIAdvanced != nil {
		c.AIAdvanced = it.AIAdvanced.Clone()
	}
	return &c
}

// HasTag reports whether the item carries the normalized tag.
func (it *Item) HasTag(tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RiskLevel is the sensitivity verdict of an assessment.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

// AIModel describes a model discovered on the inference server.
type AIModel struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"` // chat or code
	Capabilities []string `json:"capabilities"`
	MaxContext   int      `json:"max_context"`
}

// Supports reports whether the model advertises a capability.
func (m AIModel) Supports(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// AIProcessingResult is an immutable snapshot attached to an item by the
// advanced AI pass. Build a new one instead of editing an attached result.
type AIProcessingResult struct {
	ModelsDetected    []AIModel         `json:"models_detected"`
	CapabilityMapping map[string]string `json:"capability_mapping"`
	ModelsUsed        map[string]string `json:"models_used"`
	Classification    []string          `json:"classification"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	IntentGuess       string            `json:"intent_guess"`
	Suggestions       []string          `json:"suggestions"`
	RewriteAllowed    bool              `json:"rewrite_allowed"`
	FeatureSkipped    bool              `json:"feature_skipped"`
	NoModelAvailable  bool              `json:"no_model_available"`
}

// Clone returns a deep copy.
func (r *AIProcessingResult) Clone() *AIProcessingResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ModelsDetected = make([]AIModel, len(r.ModelsDetected))
	for i, m := range r.ModelsDetected {
		m.Capabilities = append([]string(nil), m.Capabilities...)
		c.ModelsDetected[i] = m
	}
	c.CapabilityMapping = cloneMap(r.CapabilityMapping)
	c.ModelsUsed = cloneMap(r.ModelsUsed)
	c.Classification = append([]string(nil), r.Classification...)
	c.Suggestions = append([]string(nil), r.Suggestions...)
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a new ULID. IDs created in the same millisecond stay sortable.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
