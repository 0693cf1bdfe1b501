package mock

import (
	"context"

	"manuscript-assist/internal/models"
)

// Stream replays a fixed chunk sequence.
type Stream struct {
	ctx    context.Context
	chunks []models.Chunk
	tail   error
	pos    int
	cur    models.Chunk
	err    error
	closed bool
}

// NewStream returns a stream over chunks that reports tail, if non-nil,
// once the chunks are exhausted.
func NewStream(ctx context.Context, chunks []models.Chunk, tail error) *Stream {
	return &Stream{ctx: ctx, chunks: chunks, tail: tail}
}

// Next implements provider.Stream.
func (s *Stream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.pos >= len(s.chunks) {
		s.err = s.tail
		return false
	}
	s.cur = s.chunks[s.pos]
	s.pos++
	return true
}

// Current implements provider.Stream.
func (s *Stream) Current() models.Chunk {
	return s.cur
}

// Err implements provider.Stream.
func (s *Stream) Err() error {
	return s.err
}

// Close implements provider.Stream.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}
