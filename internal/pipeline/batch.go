package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/engine"
)

// RunBatch summarizes files with at most concurrency documents in flight.
// Outcomes are returned in input order; one document failing never stops
// the others.
func RunBatch(ctx context.Context, w *Worker, paths []string, concurrency int) []Outcome {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]Outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			name := filepath.Base(path)
			if err := gctx.Err(); err != nil {
				out[i] = Outcome{
					File:   name,
					Result: engine.Result{DocumentID: name, State: engine.StateFailed},
					Err:    apperr.New(apperr.KindCanceled, "batch canceled", err).WithDocument(name),
				}
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				out[i] = Outcome{
					File:   name,
					Result: engine.Result{DocumentID: name, State: engine.StateFailed},
					Err:    apperr.New(apperr.KindEmptyInput, "read input", err).WithDocument(name),
				}
				return nil
			}
			out[i] = w.Summarize(gctx, name, name, "", data, nil)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
