// Package marvel implements the signed gateway client, the paginated series
// and issue crawlers, and the cached title resolver for the comics catalog.
package marvel

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Envelope is the common wrapper around every gateway response. A code other
// than 200 inside an HTTP 200 body is a soft failure.
type Envelope struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   Page   `json:"data"`
}

// Page is one offset/limit window of a listing endpoint.
type Page struct {
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	Total   int               `json:"total"`
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// Series is one series payload from the /series listing.
type Series struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	StartYear int            `json:"startYear"`
	Comics    CollectionInfo `json:"comics"`
}

// CollectionInfo reports how many child resources exist upstream.
type CollectionInfo struct {
	Available int `json:"available"`
}

// Comic is one issue payload from the /comics listing.
type Comic struct {
	ID                 int64          `json:"id"`
	Title              string         `json:"title"`
	IssueNumber        NumberOrString `json:"issueNumber"`
	VariantDescription string         `json:"variantDescription"`
	Description        string         `json:"description"`
	ISBN               string         `json:"isbn"`
	UPC                string         `json:"upc"`
	Dates              []DateEntry    `json:"dates"`
	Prices             []PriceEntry   `json:"prices"`
	Thumbnail          *Image         `json:"thumbnail"`
}

// DateEntry is a typed date on a comic payload ("onsaleDate", "focDate", ...).
type DateEntry struct {
	Type string `json:"type"`
	Date string `json:"date"`
}

// PriceEntry is a typed price on a comic payload ("printPrice", ...).
type PriceEntry struct {
	Type  string  `json:"type"`
	Price float64 `json:"price"`
}

// Image is a path/extension pair the gateway expects callers to assemble
// into a sized URL themselves.
type Image struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
}

// NumberOrString absorbs the payload's habit of sending issue numbers as
// either JSON numbers or strings. Empty means absent.
type NumberOrString string

// UnmarshalJSON accepts a number, a string, or null.
func (n *NumberOrString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*n = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*n = NumberOrString(strings.TrimSpace(v))
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	// Issue numbers arrive as floats; render whole values without the
	// trailing ".0" so "266" stays "266".
	if f, err := v.Float64(); err == nil && f == float64(int64(f)) {
		*n = NumberOrString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*n = NumberOrString(v.String())
	return nil
}

// String returns the normalized string form, empty when absent.
func (n NumberOrString) String() string {
	return string(n)
}
