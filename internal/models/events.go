package models

// Fragment is one paragraph-level unit of structured output.
type Fragment struct {
	Index           int      `json:"index"`
	Content         string   `json:"content"`
	SourceFragments []string `json:"sourceFragments"`
}

// OutputEvent is the unit delivered to a transport sink. Exactly one field is set.
type OutputEvent struct {
	StructuredFragment *Fragment `json:"structuredFragment,omitempty"`
	TextDelta          string    `json:"textDelta,omitempty"`
	Done               bool      `json:"done,omitempty"`
}

// FragmentEvent wraps a fragment.
func FragmentEvent(f Fragment) OutputEvent {
	return OutputEvent{StructuredFragment: &f}
}

// TextEvent wraps a visible text delta.
func TextEvent(text string) OutputEvent {
	return OutputEvent{TextDelta: text}
}

// DoneEvent marks the end of a successful completion.
func DoneEvent() OutputEvent {
	return OutputEvent{Done: true}
}

// ErrorEvent is the terminal line adapters write when every model failed.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AllModelsFailedMessage is reported to callers after fallback is exhausted.
const AllModelsFailedMessage = "All models failed."

// TerminalError builds the error line for an exhausted run.
func TerminalError() ErrorEvent {
	return ErrorEvent{Type: "error", Message: AllModelsFailedMessage}
}
