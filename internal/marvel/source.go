package marvel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/cache"
)

// Source combines the client, the crawlers, and the response cache into the
// catalog view the orchestrator consumes. The cache handle is injected
// explicitly and sits in front of every expensive lookup.
type Source struct {
	client *Client
	cache  *cache.Cache
	series *SeriesCrawler
	issues *IssueCrawler
	logger *zap.Logger
}

// NewSource wires a Source.
func NewSource(client *Client, store *cache.Cache, series *SeriesCrawler, issues *IssueCrawler, logger *zap.Logger) *Source {
	return &Source{
		client: client,
		cache:  store,
		series: series,
		issues: issues,
		logger: logger,
	}
}

// ResolveSeries finds the best upstream series for a title. The found flag
// is false when the gateway legitimately has no match; that is a skip for
// the caller, never an error. Resolved series are cached by title.
func (s *Source) ResolveSeries(ctx context.Context, title string) (*Series, bool, error) {
	key := "series_" + title

	data, err := s.cache.GetOrCompute(key, func() ([]byte, error) {
		return s.lookupSeries(ctx, title)
	})
	if err != nil {
		if errors.Is(err, ErrSeriesNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var series Series
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, false, fmt.Errorf("decode cached series %q: %w", title, err)
	}
	return &series, true, nil
}

// lookupSeries queries by exact title first, then falls back to a prefix
// search on the first word, scoring candidates by title-token overlap and
// upstream issue count.
func (s *Source) lookupSeries(ctx context.Context, title string) ([]byte, error) {
	query := url.Values{}
	query.Set("title", title)
	query.Set("limit", "20")

	page, err := s.client.Get(ctx, "series", query)
	if err != nil {
		return nil, err
	}
	results := page.Results

	if len(results) == 0 {
		fallback := url.Values{}
		fallback.Set("titleStartsWith", firstWord(title))
		fallback.Set("limit", "40")
		page, err = s.client.Get(ctx, "series", fallback)
		if err != nil {
			return nil, err
		}
		results = page.Results
	}
	if len(results) == 0 {
		return nil, ErrSeriesNotFound
	}

	best, err := pickBestSeries(title, results)
	if err != nil {
		return nil, err
	}
	s.logger.Info("series resolved",
		zap.String("title", title),
		zap.Int64("source_series_id", best.ID),
		zap.String("matched_title", best.Title))
	return json.Marshal(best)
}

// IssuesForSeries returns every issue of a series, consulting the per-series
// cache before crawling.
func (s *Source) IssuesForSeries(ctx context.Context, seriesID int64) ([]Comic, error) {
	key := "comics_" + strconv.FormatInt(seriesID, 10)

	data, err := s.cache.GetOrCompute(key, func() ([]byte, error) {
		comics, err := s.issues.FetchAll(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(comics)
	})
	if err != nil {
		return nil, err
	}

	var comics []Comic
	if err := json.Unmarshal(data, &comics); err != nil {
		return nil, fmt.Errorf("decode cached issues for series %d: %w", seriesID, err)
	}
	return comics, nil
}

// CrawlSeries walks the full catalog. Full crawls bypass the cache: the
// prefix walk is itself the source of truth for what exists.
func (s *Source) CrawlSeries(ctx context.Context, visit func(Series) error) error {
	return s.series.Crawl(ctx, visit)
}

func pickBestSeries(wanted string, results []json.RawMessage) (*Series, error) {
	wantedTokens := tokenSet(wanted)
	var best *Series
	bestScore := -1

	for _, raw := range results {
		var candidate Series
		if err := json.Unmarshal(raw, &candidate); err != nil {
			return nil, fmt.Errorf("decode series candidate: %w", err)
		}
		overlap := 0
		for token := range tokenSet(candidate.Title) {
			if _, ok := wantedTokens[token]; ok {
				overlap++
			}
		}
		score := overlap*10 + candidate.Comics.Available
		if score > bestScore {
			bestScore = score
			c := candidate
			best = &c
		}
	}
	if best == nil {
		return nil, ErrSeriesNotFound
	}
	return best, nil
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = struct{}{}
	}
	return out
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}
