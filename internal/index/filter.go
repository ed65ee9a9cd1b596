package index

import (
	"strings"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

// allowedExtensions lists the suffixes treated as HTML pages: the country
// and generic TLDs that appear as bare hostnames, plus page extensions.
var allowedExtensions = map[string]struct{}{
	".ae": {}, ".aero": {}, ".br": {}, ".by": {}, ".ca": {}, ".cern": {}, ".ch": {},
	".com": {}, ".cr": {}, ".dk": {}, ".es": {}, ".et": {}, ".eu": {}, ".fi": {},
	".fj": {}, ".info": {}, ".int": {}, ".international": {}, ".is": {}, ".jm": {},
	".mk": {}, ".my": {}, ".ne": {}, ".net": {}, ".org": {}, ".pl": {}, ".qa": {},
	".ru": {}, ".se": {},
	".html": {}, ".htm": {}, ".php": {},
}

// FilterHTML keeps records whose URL likely points to an HTML page: the last
// path segment has no extension or an allow-listed one. Order is preserved.
func FilterHTML(records []archive.IndexRecord) []archive.IndexRecord {
	out := make([]archive.IndexRecord, 0, len(records))
	for _, rec := range records {
		if looksLikeHTML(rec.URL) {
			out = append(out, rec)
		}
	}
	return out
}

func looksLikeHTML(rawURL string) bool {
	path := rawURL
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segment := path[strings.LastIndexByte(path, '/')+1:]
	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 {
		return true
	}
	_, ok := allowedExtensions[strings.ToLower(segment[dot:])]
	return ok
}
