package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"manuscript-assist/internal/models"
)

const maxEventBytes = 1 << 20

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage usageBlock `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *usageBlock `json:"usage,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// eventStream turns Messages API server-sent events into chunks.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cur     models.Chunk
	err     error
	usage   usageBlock
	done    bool
}

func newEventStream(body io.ReadCloser) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &eventStream{body: body, scanner: scanner}
}

func (s *eventStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.err = fmt.Errorf("decode claude event: %w", err)
			return false
		}

		chunk, ok, err := s.apply(ev)
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			s.cur = chunk
			return true
		}
		if s.done {
			return false
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("read claude stream: %w", err)
		return false
	}
	if !s.done {
		s.err = io.ErrUnexpectedEOF
	}
	return false
}

func (s *eventStream) apply(ev streamEvent) (models.Chunk, bool, error) {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			s.usage.InputTokens = ev.Message.Usage.InputTokens
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return models.Chunk{Delta: ev.Delta.Text}, true, nil
		}
	case "message_delta":
		if ev.Usage != nil {
			s.usage.OutputTokens = ev.Usage.OutputTokens
		}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			return models.Chunk{FinishReason: finishReason(ev.Delta.StopReason)}, true, nil
		}
	case "message_stop":
		s.done = true
		return models.Chunk{Usage: &models.Usage{
			PromptTokens:     s.usage.InputTokens,
			CompletionTokens: s.usage.OutputTokens,
			TotalTokens:      s.usage.InputTokens + s.usage.OutputTokens,
		}}, true, nil
	case "error":
		if ev.Error != nil {
			return models.Chunk{}, false, fmt.Errorf("claude stream error (%s): %s", ev.Error.Type, ev.Error.Message)
		}
		return models.Chunk{}, false, fmt.Errorf("claude stream error")
	}
	return models.Chunk{}, false, nil
}

func finishReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return models.FinishStop
	case "max_tokens":
		return models.FinishLength
	default:
		return stopReason
	}
}

func (s *eventStream) Current() models.Chunk {
	return s.cur
}

func (s *eventStream) Err() error {
	return s.err
}

func (s *eventStream) Close() error {
	return s.body.Close()
}
