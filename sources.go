package ripple

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/ripple/internal/generate"
)

// sourceLoadLimit bounds concurrent file reads.
const sourceLoadLimit = 8

// loadSources reads files concurrently into memory so that generators never
// touch the filesystem. A file that cannot be read is left out and
// reported in the returned map of failures; generation for its symbols then
// degrades to a generation_failed note.
func (e *Engine) loadSources(ctx context.Context, files []string) (generate.Sources, map[string]error, error) {
	var (
		mu      sync.Mutex
		sources = make(generate.Sources, len(files))
		failed  = make(map[string]error)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceLoadLimit)
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(e.resolve(f))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[f] = err
				return nil
			}
			sources[f] = generate.SplitLines(string(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sources, failed, nil
}
