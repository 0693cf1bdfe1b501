package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"manuscript-assist/internal/prompt"
)

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

var fragmentStart = regexp.MustCompile(`\{\s*"(?:fragmentIndex|fragmentContent|sourceFragments)"`)

// demuxStructured emits every complete fragment object in the buffer.
// Incomplete objects stay buffered; malformed ones are skipped one brace at a time.
func (s *StreamState) demuxStructured() error {
	for {
		loc := fragmentStart.FindStringIndex(s.buf)
		if loc == nil {
			if i := strings.LastIndexByte(s.buf, '{'); i >= 0 {
				s.buf = s.buf[i:]
			} else {
				s.buf = ""
			}
			return nil
		}

		candidate := s.buf[loc[0]:]
		dec := json.NewDecoder(strings.NewReader(candidate))
		var obj prompt.FragmentObject
		err := dec.Decode(&obj)
		switch {
		case err == nil:
			s.buf = candidate[int(dec.InputOffset()):]
			s.fragments++
			if err := s.onFragment(obj); err != nil {
				return err
			}
		case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
			s.buf = candidate
			return nil
		default:
			s.buf = candidate[1:]
		}
	}
}

// pendingFragment reports the size of an unfinished fragment left in the buffer.
func (s *StreamState) pendingFragment() int {
	loc := fragmentStart.FindStringIndex(s.buf)
	if loc == nil {
		return 0
	}
	return len(s.buf) - loc[0]
}

// demuxFreeform suppresses one leading reasoning block and streams the rest.
func (s *StreamState) demuxFreeform() error {
	for {
		switch s.phase {
		case phaseLeading:
			trimmed := strings.TrimLeftFunc(s.buf, unicode.IsSpace)
			if trimmed == "" {
				return nil
			}
			if hasPrefixFold(trimmed, reasoningOpen) {
				s.buf = trimmed[len(reasoningOpen):]
				s.phase = phaseReasoning
				continue
			}
			if len(trimmed) < len(reasoningOpen) && hasPrefixFold(reasoningOpen, trimmed) {
				return nil
			}
			s.phase = phaseVisible

		case phaseReasoning:
			if i := indexFold(s.buf, reasoningClose); i >= 0 {
				s.reasoning.WriteString(s.buf[:i])
				s.buf = s.buf[i+len(reasoningClose):]
				s.phase = phaseAfterReasoning
				continue
			}
			if keep := len(reasoningClose) - 1; len(s.buf) > keep {
				cut := len(s.buf) - keep
				s.reasoning.WriteString(s.buf[:cut])
				s.buf = s.buf[cut:]
			}
			return nil

		case phaseAfterReasoning:
			s.buf = strings.TrimLeftFunc(s.buf, unicode.IsSpace)
			if s.buf == "" {
				return nil
			}
			s.phase = phaseVisible

		case phaseVisible:
			out := s.buf
			s.buf = ""
			return s.text(out)
		}
	}
}

func (s *StreamState) flushFreeform() error {
	switch s.phase {
	case phaseLeading:
		if strings.TrimSpace(s.buf) == "" {
			s.buf = ""
			return nil
		}
	case phaseReasoning:
		s.reasoning.WriteString(s.buf)
		s.buf = strings.TrimSpace(s.reasoning.String())
	}

	out := s.buf
	s.buf = ""
	return s.text(out)
}

// wholeText returns the full response with any leading reasoning block and
// surrounding markdown code fence removed.
func (s *StreamState) wholeText() string {
	text := strings.TrimSpace(s.raw.String())
	if hasPrefixFold(text, reasoningOpen) {
		if i := indexFold(text, reasoningClose); i >= 0 {
			text = strings.TrimSpace(text[i+len(reasoningClose):])
		}
	}
	return stripCodeFence(text)
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func indexFold(s, marker string) int {
	for i := 0; i+len(marker) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}
