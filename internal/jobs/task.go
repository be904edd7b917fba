package jobs

import (
	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/parser"
	"github.com/jackzampolin/plotline/internal/providers"
)

// Task describes what a run asks of each chunk.
type Task interface {
	// Request builds the chat request for a chunk. Model and timeout are
	// filled in from the executor when left empty.
	Request(c chunk.Chunk) *providers.ChatRequest

	// Accept validates a parsed response. A non-nil error counts as a failed
	// attempt and the chunk is retried.
	Accept(c chunk.Chunk, res *parser.Result) error
}

// TaskFunc adapts a pair of functions to Task.
type TaskFunc struct {
	RequestFunc func(c chunk.Chunk) *providers.ChatRequest
	AcceptFunc  func(c chunk.Chunk, res *parser.Result) error
}

func (t TaskFunc) Request(c chunk.Chunk) *providers.ChatRequest {
	return t.RequestFunc(c)
}

func (t TaskFunc) Accept(c chunk.Chunk, res *parser.Result) error {
	if t.AcceptFunc == nil {
		return nil
	}
	return t.AcceptFunc(c, res)
}
