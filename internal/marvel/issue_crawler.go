package marvel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// IssueCrawler pages through one series' issues in issue-number order.
type IssueCrawler struct {
	client    *Client
	pageSize  int
	maxPages  int
	pageDelay time.Duration
	pause     Pauser
	logger    *zap.Logger
}

// NewIssueCrawler builds an issue crawler. maxPages bounds worst-case work
// against a misbehaving reported total.
func NewIssueCrawler(client *Client, pageSize, maxPages int, pageDelay time.Duration, pause Pauser, logger *zap.Logger) *IssueCrawler {
	return &IssueCrawler{
		client:    client,
		pageSize:  pageSize,
		maxPages:  maxPages,
		pageDelay: pageDelay,
		pause:     pause,
		logger:    logger,
	}
}

// FetchAll accumulates every issue of the series, ordered by issue number,
// until an empty page, the reported total, or the page-count cap.
func (c *IssueCrawler) FetchAll(ctx context.Context, seriesID int64) ([]Comic, error) {
	var comics []Comic
	offset := 0

	for pageNum := 0; pageNum < c.maxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pageNum > 0 {
			c.pause.Pause(ctx, c.pageDelay)
		}

		query := url.Values{}
		query.Set("series", strconv.FormatInt(seriesID, 10))
		query.Set("orderBy", "issueNumber")
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("offset", strconv.Itoa(offset))

		page, err := c.client.Get(ctx, "comics", query)
		if err != nil {
			return nil, fmt.Errorf("fetch issues for series %d offset %d: %w", seriesID, offset, err)
		}
		if len(page.Results) == 0 {
			break
		}

		for _, raw := range page.Results {
			var comic Comic
			if err := json.Unmarshal(raw, &comic); err != nil {
				return nil, fmt.Errorf("decode comic payload: %w", err)
			}
			comics = append(comics, comic)
		}

		offset += len(page.Results)
		if offset >= page.Total {
			break
		}
	}

	c.logger.Debug("issue crawl complete",
		zap.Int64("series_id", seriesID),
		zap.Int("issues", len(comics)))
	return comics, nil
}
