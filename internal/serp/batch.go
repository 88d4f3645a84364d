package serp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// PageFetcher retrieves raw SERP HTML for one page of a query.
type PageFetcher interface {
	FetchPage(ctx context.Context, req BatchRequest, page int) ([]byte, error)
}

// Searcher runs a multi-page SERP search. Pager satisfies it; the worker
// pipeline depends only on this.
type Searcher interface {
	Search(ctx context.Context, req BatchRequest) (BatchResult, error)
}

// Pager fans out bounded-concurrency page fetches and merges the parsed
// results into one continuously-ranked list.
type Pager struct {
	fetcher     PageFetcher
	parser      *Parser
	concurrency int64
	logger      *zap.Logger
}

// NewPager builds a Pager. Concurrency caps in-flight page fetches.
func NewPager(fetcher PageFetcher, parser *Parser, concurrency int, logger *zap.Logger) *Pager {
	if concurrency <= 0 {
		concurrency = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{
		fetcher:     fetcher,
		parser:      parser,
		concurrency: int64(concurrency),
		logger:      logger,
	}
}

// Search fetches and parses req.Pages pages concurrently. Partial success is
// a valid outcome; zero successful pages is an error.
func (p *Pager) Search(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if req.Query == "" {
		return BatchResult{}, errors.New("serp search: query is required")
	}
	if req.Pages <= 0 {
		req.Pages = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = 10
	}

	sem := semaphore.NewWeighted(p.concurrency)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		pages    = make(map[int]Page, req.Pages)
		outcomes = make([]PageOutcome, 0, req.Pages)
	)

	for pageNum := 1; pageNum <= req.Pages; pageNum++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Pages never attempted still get an outcome so failure counts
			// cover the whole batch.
			mu.Lock()
			for n := pageNum; n <= req.Pages; n++ {
				outcomes = append(outcomes, PageOutcome{Page: n, Error: err.Error()})
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(pageNum int) {
			defer wg.Done()
			defer sem.Release(1)

			page, err := p.searchPage(ctx, req, pageNum)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("serp page failed",
					zap.String("query", req.Query),
					zap.Int("page", pageNum),
					zap.Error(err),
				)
				outcomes = append(outcomes, PageOutcome{Page: pageNum, Error: err.Error()})
				return
			}
			pages[pageNum] = page
			outcomes = append(outcomes, PageOutcome{Page: pageNum, ResultCount: len(page.Results)})
		}(pageNum)
	}
	wg.Wait()

	return p.merge(req, pages, outcomes)
}

func (p *Pager) searchPage(ctx context.Context, req BatchRequest, pageNum int) (Page, error) {
	html, err := p.fetcher.FetchPage(ctx, req, pageNum)
	if err != nil {
		return Page{}, err
	}
	return p.parser.Parse(html, req.Query, pageNum, req.PerPage)
}

// merge orders results by source page number and reassigns a continuous rank
// starting at 1.
func (p *Pager) merge(req BatchRequest, pages map[int]Page, outcomes []PageOutcome) (BatchResult, error) {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Page < outcomes[j].Page })

	result := BatchResult{
		Query: req.Query,
		Pages: outcomes,
	}

	pageNums := make([]int, 0, len(pages))
	for n := range pages {
		pageNums = append(pageNums, n)
	}
	sort.Ints(pageNums)

	rank := 1
	for _, n := range pageNums {
		page := pages[n]
		for _, res := range page.Results {
			res.Rank = rank
			result.Results = append(result.Results, res)
			rank++
		}
		// The most authoritative total wins: prefer any extracted count over
		// an estimate, and the latest page's estimate otherwise.
		if !page.Pagination.TotalEstimated || result.TotalResults == 0 || result.TotalEstimated {
			result.TotalResults = page.Pagination.TotalResults
			result.TotalEstimated = page.Pagination.TotalEstimated
		}
	}

	for _, o := range outcomes {
		if o.Error == "" {
			result.PagesSucceeded++
		} else {
			result.PagesFailed++
		}
	}
	if result.PagesSucceeded == 0 {
		return result, fmt.Errorf("serp search %q: all %d pages failed", req.Query, len(outcomes))
	}
	return result, nil
}
