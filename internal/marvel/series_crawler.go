package marvel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrStopCrawl can be returned from a visit callback to stop crawling early
// without reporting an error.
var ErrStopCrawl = errors.New("stop crawl")

// seriesPrefixes spans digits then uppercase letters. The unfiltered series
// listing is unreliable under load, so the crawler enumerates the catalog
// one title prefix at a time instead.
const seriesPrefixes = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SeriesCrawler enumerates the full series catalog by paging a
// prefix-filtered listing endpoint.
type SeriesCrawler struct {
	client    *Client
	pageSize  int
	maxSeries int
	pageDelay time.Duration
	pause     Pauser
	logger    *zap.Logger
}

// NewSeriesCrawler builds a catalog crawler. maxSeries of zero means
// unbounded.
func NewSeriesCrawler(client *Client, pageSize, maxSeries int, pageDelay time.Duration, pause Pauser, logger *zap.Logger) *SeriesCrawler {
	return &SeriesCrawler{
		client:    client,
		pageSize:  pageSize,
		maxSeries: maxSeries,
		pageDelay: pageDelay,
		pause:     pause,
		logger:    logger,
	}
}

// Crawl visits every series in the catalog exactly once, in prefix order.
// A series whose title matches multiple prefixes is deduplicated by id.
// Restarting always begins from offset zero of the first prefix.
func (c *SeriesCrawler) Crawl(ctx context.Context, visit func(Series) error) error {
	seen := make(map[int64]struct{})
	yielded := 0

	for _, prefix := range seriesPrefixes {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			query := url.Values{}
			query.Set("titleStartsWith", string(prefix))
			query.Set("limit", strconv.Itoa(c.pageSize))
			query.Set("offset", strconv.Itoa(offset))

			page, err := c.client.Get(ctx, "series", query)
			if err != nil {
				return fmt.Errorf("crawl series prefix %q offset %d: %w", string(prefix), offset, err)
			}
			if len(page.Results) == 0 {
				break
			}

			for _, raw := range page.Results {
				var s Series
				if err := json.Unmarshal(raw, &s); err != nil {
					return fmt.Errorf("decode series payload: %w", err)
				}
				if _, ok := seen[s.ID]; ok {
					continue
				}
				seen[s.ID] = struct{}{}

				if err := visit(s); err != nil {
					if errors.Is(err, ErrStopCrawl) {
						return nil
					}
					return err
				}
				yielded++
				if c.maxSeries > 0 && yielded >= c.maxSeries {
					return nil
				}
			}

			offset += len(page.Results)
			if offset >= page.Total {
				break
			}
			c.pause.Pause(ctx, c.pageDelay)
		}
		c.logger.Debug("series prefix exhausted",
			zap.String("prefix", string(prefix)),
			zap.Int("yielded", yielded))
	}
	return nil
}
