package ai

import (
	"fmt"
	"strings"

	"github.com/hpungsan/whispr/internal/item"
)

// Capabilities in declaration order. Fallback mapping and suggestion lists
// follow this order.
const (
	CapClassification = "classification"
	CapSuggestion     = "suggestion"
	CapRanking        = "ranking"
	CapGrouping       = "grouping"
	CapRewrite        = "rewrite"
	CapClean          = "clean"
	CapSummarize      = "summarize"
	CapTranslate      = "translate"
)

// Capabilities lists every declared capability.
var Capabilities = []string{
	CapClassification, CapSuggestion, CapRanking, CapGrouping,
	CapRewrite, CapClean, CapSummarize, CapTranslate,
}

// Actions a user can run on an item.
const (
	ActionClean     = "clean"
	ActionSummarize = "summarize"
	ActionRewrite   = "rewrite"
	ActionTranslate = "translate"
	ActionExplain   = "explain"
)

// Actions lists every action in display order.
var Actions = []string{ActionClean, ActionSummarize, ActionRewrite, ActionTranslate, ActionExplain}

var actionCapability = map[string]string{
	ActionClean:     CapClean,
	ActionSummarize: CapSummarize,
	ActionRewrite:   CapRewrite,
	ActionTranslate: CapTranslate,
	ActionExplain:   CapSuggestion,
}

// CapabilityFor maps an action to the capability that serves it.
func CapabilityFor(action string) (string, bool) {
	c, ok := actionCapability[strings.ToLower(strings.TrimSpace(action))]
	return c, ok
}

// IsCapability reports whether c is declared.
func IsCapability(c string) bool {
	for _, x := range Capabilities {
		if x == c {
			return true
		}
	}
	return false
}

// Model kinds.
const (
	KindChat = "chat"
	KindCode = "code"
)

// DefaultMaxContext is used when the server does not report one.
const DefaultMaxContext = 4096

var codeCapabilities = []string{CapClassification, CapSuggestion, CapClean, CapRewrite}

// describeModel turns a server listing into a registry entry.
func describeModel(info ModelInfo) item.AIModel {
	name := strings.ToLower(info.Name)
	m := item.AIModel{Name: info.Name, Kind: KindChat, MaxContext: info.Details.ContextLength}
	if strings.Contains(name, "code") || strings.Contains(name, "coder") || strings.Contains(name, "starcoder") {
		m.Kind = KindCode
		m.Capabilities = append([]string(nil), codeCapabilities...)
	} else {
		m.Capabilities = append([]string(nil), Capabilities...)
	}
	if m.MaxContext <= 0 {
		m.MaxContext = DefaultMaxContext
	}
	return m
}

// buildPrompt prefixes content with the instruction for capability.
func buildPrompt(capability, content, targetLanguage string) string {
	var instruction string
	switch capability {
	case CapClean:
		instruction = "Clean up the following text: fix spacing, punctuation and obvious typos without changing its meaning. Reply with the cleaned text only."
	case CapSummarize:
		instruction = "Summarize the following text in one or two sentences. Reply with the summary only."
	case CapRewrite:
		instruction = "Rewrite the following text so it reads clearly and concisely. Reply with the rewritten text only."
	case CapTranslate:
		if targetLanguage == "" {
			targetLanguage = "English"
		}
		instruction = fmt.Sprintf("Translate the following text into %s. Reply with the translation only.", targetLanguage)
	case CapSuggestion:
		instruction = "Explain briefly what the following content is and what it is likely used for."
	default:
		instruction = fmt.Sprintf("Perform the %q task on the following text.", capability)
	}
	return instruction + "\n\n" + content
}
