package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/whispr/internal/ai"
	"github.com/hpungsan/whispr/internal/classify"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/history"
	"github.com/hpungsan/whispr/internal/item"
)

// aiEnabled rejects with AI_DISABLED when AI is switched off, or when
// action is set and disabled on its own.
func (e *Engine) aiEnabled(action string) error {
	cfg := e.Config()
	if cfg.AIDisabled {
		return errors.NewAIDisabled("")
	}
	if action != "" && !cfg.ActionEnabled(action) {
		return errors.NewAIDisabled(action)
	}
	return nil
}

// PerformActionInput contains parameters for PerformAction.
type PerformActionInput struct {
	ItemID string
	Action string // clean, summarize, rewrite, translate, explain
	// Wait blocks until the result is attached instead of returning as
	// soon as the request is dispatched.
	Wait bool
}

// PerformActionOutput contains the result of PerformAction.
type PerformActionOutput struct {
	ItemID string `json:"item_id"`
	Action string `json:"action"`
	Status string `json:"status"` // processing, done, discarded
	Result string `json:"result,omitempty"`
}

// PerformAction runs an AI action on a history item. The item is marked
// processing before this returns; the result is attached when the request
// completes, unless the item was removed or replaced meanwhile.
func (e *Engine) PerformAction(ctx context.Context, input PerformActionInput) (*PerformActionOutput, error) {
	id, err := requireID("item_id", input.ItemID)
	if err != nil {
		return nil, err
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if _, ok := ai.CapabilityFor(action); !ok {
		return nil, errors.NewInvalidRequest("unknown action: " + input.Action)
	}
	if err := e.aiEnabled(action); err != nil {
		return nil, err
	}

	current, err := e.history.Get(id)
	if err != nil {
		return nil, err
	}
	if action == ai.ActionRewrite && !ai.AssessRisk(current).RewriteAllowed {
		return nil, errors.NewInvalidRequest("rewrite is not allowed for sensitive content")
	}

	snap, token, err := e.history.BeginProcessing(id)
	if err != nil {
		return nil, err
	}

	type completion struct {
		result   string
		attached bool
	}
	done := make(chan completion, 1)
	err = e.ai.Submit(snap, action, func(result string) {
		attached := e.history.FinishProcessing(id, token, history.Completion{Result: &result})
		done <- completion{result: result, attached: attached}
	})
	if err != nil {
		e.history.FinishProcessing(id, token, history.Completion{})
		return nil, mapAIError(err)
	}

	out := &PerformActionOutput{ItemID: id, Action: action, Status: "processing"}
	if !input.Wait {
		return out, nil
	}
	select {
	case c := <-done:
		out.Result = c.result
		out.Status = "done"
		if !c.attached {
			out.Status = "discarded"
		}
	case <-ctx.Done():
	}
	return out, nil
}

// RunActionInput contains parameters for RunAction.
type RunActionInput struct {
	Content string
	Action  string
}

// RunAction runs an AI action on free text without touching history.
// Failures come back as errors rather than message text.
func (e *Engine) RunAction(ctx context.Context, input RunActionInput) (string, error) {
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if _, ok := ai.CapabilityFor(action); !ok {
		return "", errors.NewInvalidRequest("unknown action: " + input.Action)
	}
	if err := e.aiEnabled(action); err != nil {
		return "", err
	}
	content := item.NormalizeContent(input.Content)
	if content == "" {
		return "", errors.NewInvalidRequest("content is empty")
	}
	out, err := e.ai.Run(ctx, content, action)
	if err != nil {
		return "", mapAIError(err)
	}
	return out, nil
}

// ProcessAdvanced computes and attaches the capability routing and risk
// assessment for a history item.
func (e *Engine) ProcessAdvanced(ctx context.Context, id string) (*item.AIProcessingResult, error) {
	id, err := requireID("item_id", id)
	if err != nil {
		return nil, err
	}
	if err := e.aiEnabled(""); err != nil {
		return nil, err
	}
	it, err := e.history.Get(id)
	if err != nil {
		return nil, err
	}
	res := e.ai.ProcessAdvanced(it)
	if _, err := e.history.AttachAdvanced(id, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Assess classifies free text and reports its risk.
func (e *Engine) Assess(text string) (*AssessOutput, error) {
	content := item.NormalizeContent(text)
	if content == "" {
		return nil, errors.NewInvalidRequest("text is empty")
	}
	it := &item.Item{Content: content, Type: classify.Classify(content)}
	a := ai.AssessRisk(it)
	return &AssessOutput{Type: it.Type, Assessment: a}, nil
}

// AssessOutput contains the result of Assess.
type AssessOutput struct {
	Type item.ContentType `json:"type"`
	ai.Assessment
}

// Models returns the registry, mapping and connectivity without contacting
// the server.
func (e *Engine) Models(ctx context.Context) ai.Status {
	return e.ai.Status()
}

// Discover refreshes the model registry from the inference server.
func (e *Engine) Discover(ctx context.Context) (*ai.Status, error) {
	if err := e.aiEnabled(""); err != nil {
		return nil, err
	}
	if _, err := e.ai.Discover(ctx); err != nil {
		return nil, mapAIError(err)
	}
	st := e.ai.Status()
	return &st, nil
}

// MapInput contains parameters for MapCapability.
type MapInput struct {
	Capability string
	Model      string // empty clears the mapping
}

// MapCapability assigns a discovered model to a capability, or clears the
// assignment when Model is empty.
func (e *Engine) MapCapability(ctx context.Context, input MapInput) (*ai.Status, error) {
	capability := strings.ToLower(strings.TrimSpace(input.Capability))
	model := strings.TrimSpace(input.Model)

	var err error
	if model == "" {
		err = e.ai.ClearMapping(ctx, capability)
	} else {
		err = e.ai.SetMapping(ctx, capability, model)
	}
	if err != nil {
		return nil, mapAIError(err)
	}
	st := e.ai.Status()
	return &st, nil
}

// CardOutput describes a number checked against the card network table.
type CardOutput struct {
	IsCard  bool   `json:"is_card"`
	Network string `json:"network,omitempty"`
	Masked  string `json:"masked"`
	Digits  int    `json:"digits"`
}

// CardInspect reports whether text is a payment card number and which network.
func (e *Engine) CardInspect(text string) *CardOutput {
	network, ok := classify.DetectNetwork(text)
	return &CardOutput{
		IsCard:  ok,
		Network: network,
		Masked:  classify.MaskNumber(text),
		Digits:  len(classify.Clean(text)),
	}
}
