package assist

import (
	"context"
	"fmt"
	"strings"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/prompt"
)

// ToolPayload is the input of the embedded tool. Context lists are joined
// with newlines.
type ToolPayload struct {
	Feature            string
	Text               []string
	TextBefore         []string
	TextAfter          []string
	CustomInstructions string
	PromptContexts     []prompt.PlotContext
	UserID             string
}

// Tool exposes the pipeline as a callback-driven function for in-process embedding.
type Tool struct {
	service *Service
}

// NewTool wraps a service.
func NewTool(service *Service) *Tool {
	return &Tool{service: service}
}

// Process runs the payload, delivering events to onStream. onError receives
// validation failures, terminal failure and cancellation; the same error is
// returned. A panic in onStream fails the current model attempt.
func (t *Tool) Process(ctx context.Context, payload ToolPayload, onStream func(models.OutputEvent), onError func(error)) error {
	req := Request{
		Feature:            payload.Feature,
		Text:               payload.Text,
		TextBefore:         ContextText(strings.Join(payload.TextBefore, "\n")),
		TextAfter:          ContextText(strings.Join(payload.TextAfter, "\n")),
		CustomInstructions: payload.CustomInstructions,
		PromptContexts:     payload.PromptContexts,
	}

	sink := func(ev models.OutputEvent) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stream callback panicked: %v", r)
			}
		}()
		onStream(ev)
		return nil
	}

	res, err := t.service.Process(ctx, req, payload.UserID, sink)
	if err == nil && !res.Succeeded {
		err = ErrAllModelsFailed
	}
	if err != nil && onError != nil {
		onError(err)
	}
	return err
}
