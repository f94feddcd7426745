package generation

import (
	"context"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Request is the input of one stage
type Request struct {
	SessionID      string
	Stage          model.StageKind
	Text           string
	Aggressiveness Aggressiveness
	ItemCount      int
}

// Backend produces the artifacts of one stage from the extracted text
type Backend interface {
	Generate(ctx context.Context, req Request) (model.Artifacts, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, req Request) (model.Artifacts, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (model.Artifacts, error) {
	return f(ctx, req)
}
