package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/amishk599/autoapply/internal/model"
)

// FetchAll runs every query against every source and returns one result per
// (query, source) pair in query-major order. Sources are queried in parallel;
// the queries for one source run sequentially so per-source rate limits hold.
// A failing or panicking source only produces an error result.
func FetchAll(ctx context.Context, sources []model.JobSource, queries []string, location string, limit int) []model.FetchResult {
	results := make([]model.FetchResult, len(sources)*len(queries))

	var wg sync.WaitGroup
	for si, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for qi, q := range queries {
				results[qi*len(sources)+si] = fetchOne(ctx, src, q, location, limit)
			}
		}()
	}
	wg.Wait()

	return results
}

func fetchOne(ctx context.Context, src model.JobSource, query, location string, limit int) (res model.FetchResult) {
	res = model.FetchResult{Source: src.Name(), Query: query}
	defer func() {
		if r := recover(); r != nil {
			res.Postings = nil
			res.Err = fmt.Errorf("%s panicked: %v", src.Name(), r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Postings, res.Err = src.Fetch(ctx, query, location, limit)
	return res
}
