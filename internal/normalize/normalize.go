// Package normalize maps raw upstream payloads into canonical issue records.
// Every function here is pure: no store, no network, no clock.
package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/comixcatalog/etl/internal/marvel"
	"github.com/comixcatalog/etl/internal/store"
)

// dateCandidates lists payload date types in resolution priority order. The
// first candidate with a parseable value wins.
var dateCandidates = []string{
	"coverDate",
	"onsaleDate",
	"focDate",
	"unlimitedDate",
	"digitalPurchaseDate",
}

// dateLayouts are the timestamp shapes the gateway is known to emit.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
}

// printPriceType selects the price entry carried into price_cents.
const printPriceType = "printPrice"

// coverVariant is the display-size segment used when assembling cover URLs.
const coverVariant = "portrait_uncanny"

// placeholderImage marks the gateway's "image unavailable" asset; it is
// treated the same as no image.
const placeholderImage = "image_not_available"

// MapComic flattens one raw comic payload into a store record. The ordering
// index is assigned by the caller from crawl order.
func MapComic(c marvel.Comic) store.IssueRecord {
	rec := store.IssueRecord{
		Title:       nonEmpty(c.Title),
		Description: nonEmpty(c.Description),
		ISBN:        nonEmpty(c.ISBN),
		UPC:         nonEmpty(c.UPC),
		IssueNumber: IssueNumber(c.IssueNumber),
		ReleaseDate: BestDate(c.Dates),
		OnsaleDate:  DateOfType(c.Dates, "onsaleDate"),
		PriceCents:  PriceCents(c.Prices),
		CoverURL:    CoverURL(c.Thumbnail),
		IsVariant:   IsVariant(c.Title, c.VariantDescription),
		VariantName: nonEmpty(c.VariantDescription),
	}
	if c.ID > 0 {
		id := c.ID
		rec.SourceComicID = &id
	}
	return rec
}

// BestDate resolves the display date by walking the candidate types in
// priority order and returning the first parseable value. Unparsable or
// absent dates yield nil, never an error.
func BestDate(dates []marvel.DateEntry) *time.Time {
	byType := make(map[string]string, len(dates))
	for _, d := range dates {
		if d.Type != "" {
			byType[d.Type] = d.Date
		}
	}
	for _, candidate := range dateCandidates {
		if t := ParseAnyDate(byType[candidate]); t != nil {
			return t
		}
	}
	return nil
}

// DateOfType parses the date entry of exactly the given type, nil if absent
// or unparseable.
func DateOfType(dates []marvel.DateEntry, typ string) *time.Time {
	for _, d := range dates {
		if d.Type == typ {
			return ParseAnyDate(d.Date)
		}
	}
	return nil
}

// ParseAnyDate tries the known layouts, then a permissive RFC3339 parse with
// a trailing Z stripped. Failure yields nil.
func ParseAnyDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			day := t.UTC().Truncate(24 * time.Hour)
			return &day
		}
	}
	if t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z")); err == nil {
		day := t.UTC().Truncate(24 * time.Hour)
		return &day
	}
	return nil
}

// IssueNumber coerces the payload's numeric-or-string issue number to its
// trimmed string form; absent stays nil.
func IssueNumber(n marvel.NumberOrString) *string {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return nil
	}
	return &s
}

// PriceCents locates the print-price entry and converts its decimal value to
// integer minor-currency units by rounding. Absent price yields nil.
func PriceCents(prices []marvel.PriceEntry) *int {
	for _, p := range prices {
		if p.Type == printPriceType {
			cents := int(math.Round(p.Price * 100))
			return &cents
		}
	}
	return nil
}

// CoverURL assembles a fully-qualified secure image URL with the display
// variant segment. Missing path or extension, or the known placeholder
// asset, yields nil.
func CoverURL(img *marvel.Image) *string {
	if img == nil || img.Path == "" || img.Extension == "" {
		return nil
	}
	if strings.Contains(img.Path, placeholderImage) {
		return nil
	}
	path := img.Path
	if strings.HasPrefix(path, "http://") {
		path = "https://" + strings.TrimPrefix(path, "http://")
	}
	url := path + "/" + coverVariant + "." + img.Extension
	return &url
}

// IsVariant flags a payload as a variant printing when a variant description
// is present or the word appears anywhere in the combined title and
// description text.
func IsVariant(title, variantDescription string) bool {
	if strings.TrimSpace(variantDescription) != "" {
		return true
	}
	combined := strings.ToLower(title + " " + variantDescription)
	return strings.Contains(combined, "variant")
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
