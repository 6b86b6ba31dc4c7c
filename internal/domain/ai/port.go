package ai

import "context"

// Client port for the advisory AI pass over extracted functions. Results
// are informational; the pipeline never depends on them to complete.
type Client interface {
	ClassifyFunctions(ctx context.Context, functionsJSON string) (string, error)
	InferProtocol(ctx context.Context, cryptoFunctionsJSON string) (string, error)
}
