package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apple/pkl-go/pkl"
)

const pklEvalTimeout = 30 * time.Second

// evaluatePkl renders a Pkl policy module as JSON so it goes through the same
// schema validation as JSON and YAML documents. Requires the pkl CLI on PATH.
func evaluatePkl(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pklEvalTimeout)
	defer cancel()

	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions, func(opts *pkl.EvaluatorOptions) {
		opts.OutputFormat = "json"
	})
	if err != nil {
		return nil, fmt.Errorf("start pkl evaluator: %w", err)
	}
	defer evaluator.Close()

	out, err := evaluator.EvaluateOutputText(ctx, pkl.FileSource(abs))
	if err != nil {
		return nil, fmt.Errorf("evaluate pkl module: %w", err)
	}
	return []byte(out), nil
}
