package index

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

// ErrEmptyResponse means the index returned no rows at all, not even a
// header. The domain is not marked finished.
var ErrEmptyResponse = errors.New("index returned an empty response")

// Row is one data row of a CDX page.
type Row struct {
	URLKey    string
	Timestamp string
}

// Page is a parsed CDX page.
type Page struct {
	Header []string
	Rows   []Row
	// ResumeKey is the next page's key or archive.ResumeFinished.
	ResumeKey string
}

// Finished reports whether this was the last page.
func (p Page) Finished() bool {
	return p.ResumeKey == archive.ResumeFinished
}

// ParsePage splits a decoded CDX response into header, rows and resume key.
// A continuing page ends with an empty row followed by [resumeKey]; any
// other shape is the final page.
func ParsePage(rows [][]string) (Page, error) {
	if len(rows) == 0 {
		return Page{}, ErrEmptyResponse
	}
	page := Page{Header: append([]string(nil), rows[0]...)}

	data := rows[1:]
	page.ResumeKey = archive.ResumeFinished
	if n := len(rows); n >= 3 && len(rows[n-2]) == 0 {
		last := rows[n-1]
		if len(last) == 0 || last[0] == "" {
			return Page{}, fmt.Errorf("parse page: missing resume key after separator row")
		}
		page.ResumeKey = last[0]
		data = rows[1 : n-2]
	}

	urlCol, tsCol := columns(page.Header)
	page.Rows = make([]Row, 0, len(data))
	for i, r := range data {
		if len(r) <= urlCol || len(r) <= tsCol {
			return Page{}, fmt.Errorf("parse page: row %d has %d fields", i+1, len(r))
		}
		page.Rows = append(page.Rows, Row{URLKey: r[urlCol], Timestamp: r[tsCol]})
	}
	return page, nil
}

// columns locates urlkey and timestamp in the header, defaulting to the
// requested field order.
func columns(header []string) (int, int) {
	urlCol, tsCol := 0, 1
	for i, name := range header {
		switch name {
		case "urlkey", "original":
			urlCol = i
		case "timestamp":
			tsCol = i
		}
	}
	return urlCol, tsCol
}
