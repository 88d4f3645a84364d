package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageFetcherFunc adapts a func to PageFetcher.
type pageFetcherFunc func(ctx context.Context, req BatchRequest, page int) ([]byte, error)

func (f pageFetcherFunc) FetchPage(ctx context.Context, req BatchRequest, page int) ([]byte, error) {
	return f(ctx, req, page)
}

func fixedPageHTML(page, count int) []byte {
	var sb strings.Builder
	for i := 0; i < count; i++ {
		sb.WriteString(organicResult(
			fmt.Sprintf("Page %d result %d", page, i+1),
			fmt.Sprintf("https://p%dr%d.example/", page, i+1),
			"",
		))
	}
	return serpHTML(sb.String(), "")
}

func TestPagerMergesContinuousRanks(t *testing.T) {
	t.Parallel()

	fetcher := pageFetcherFunc(func(_ context.Context, _ BatchRequest, page int) ([]byte, error) {
		return fixedPageHTML(page, 3), nil
	})
	pager := NewPager(fetcher, NewParser(nil), 2, nil)

	result, err := pager.Search(context.Background(), BatchRequest{Query: "q", Pages: 3, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, result.Results, 9)
	assert.Equal(t, 3, result.PagesSucceeded)
	assert.Zero(t, result.PagesFailed)

	for i, res := range result.Results {
		assert.Equal(t, i+1, res.Rank, "rank must be continuous")
	}
	// Page order is preserved in the merged list.
	assert.Equal(t, "Page 1 result 1", result.Results[0].Title)
	assert.Equal(t, "Page 2 result 1", result.Results[3].Title)
	assert.Equal(t, "Page 3 result 3", result.Results[8].Title)
}

func TestPagerPartialFailure(t *testing.T) {
	t.Parallel()

	fetcher := pageFetcherFunc(func(_ context.Context, _ BatchRequest, page int) ([]byte, error) {
		if page == 2 {
			return nil, errors.New("proxy hiccup")
		}
		return fixedPageHTML(page, 2), nil
	})
	pager := NewPager(fetcher, NewParser(nil), 3, nil)

	result, err := pager.Search(context.Background(), BatchRequest{Query: "q", Pages: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.PagesSucceeded)
	assert.Equal(t, 1, result.PagesFailed)
	require.Len(t, result.Results, 4)

	// Ranks close over the gap left by the failed page.
	assert.Equal(t, "Page 1 result 1", result.Results[0].Title)
	assert.Equal(t, 1, result.Results[0].Rank)
	assert.Equal(t, "Page 3 result 1", result.Results[2].Title)
	assert.Equal(t, 3, result.Results[2].Rank)

	require.Len(t, result.Pages, 3)
	assert.Equal(t, "proxy hiccup", result.Pages[1].Error)
}

func TestPagerAllPagesFailed(t *testing.T) {
	t.Parallel()

	fetcher := pageFetcherFunc(func(context.Context, BatchRequest, int) ([]byte, error) {
		return nil, errors.New("down")
	})
	pager := NewPager(fetcher, NewParser(nil), 2, nil)

	result, err := pager.Search(context.Background(), BatchRequest{Query: "q", Pages: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 pages failed")
	assert.Equal(t, 2, result.PagesFailed)
}

func TestPagerCancellationCoversUnattemptedPages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := pageFetcherFunc(func(context.Context, BatchRequest, int) ([]byte, error) {
		cancel()
		return nil, errors.New("connection reset")
	})
	pager := NewPager(fetcher, NewParser(nil), 1, nil)

	result, err := pager.Search(ctx, BatchRequest{Query: "q", Pages: 4, PerPage: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 4 pages failed")

	// Pages never attempted after cancellation still carry an outcome.
	require.Len(t, result.Pages, 4)
	assert.Equal(t, 4, result.PagesFailed)
	for i, outcome := range result.Pages {
		assert.Equal(t, i+1, outcome.Page)
		assert.NotEmpty(t, outcome.Error)
	}
}

func TestPagerRequiresQuery(t *testing.T) {
	t.Parallel()

	pager := NewPager(pageFetcherFunc(func(context.Context, BatchRequest, int) ([]byte, error) {
		return nil, nil
	}), NewParser(nil), 1, nil)

	_, err := pager.Search(context.Background(), BatchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestPagerBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	gate := make(chan struct{})

	fetcher := pageFetcherFunc(func(_ context.Context, _ BatchRequest, page int) ([]byte, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		<-gate
		mu.Lock()
		inFlight--
		mu.Unlock()
		return fixedPageHTML(page, 1), nil
	})
	pager := NewPager(fetcher, NewParser(nil), 2, nil)

	done := make(chan struct{})
	go func() {
		_, _ = pager.Search(context.Background(), BatchRequest{Query: "q", Pages: 6, PerPage: 1})
		close(done)
	}()
	close(gate)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, 2)
}

func TestPagerBlockedPageCountsAsFailure(t *testing.T) {
	t.Parallel()

	fetcher := pageFetcherFunc(func(_ context.Context, _ BatchRequest, page int) ([]byte, error) {
		if page == 1 {
			return []byte(`<html><body><div class="g-recaptcha"></div></body></html>`), nil
		}
		return fixedPageHTML(page, 1), nil
	})
	pager := NewPager(fetcher, NewParser(nil), 2, nil)

	result, err := pager.Search(context.Background(), BatchRequest{Query: "q", Pages: 2, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesFailed)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, result.Results[0].Rank)
}
