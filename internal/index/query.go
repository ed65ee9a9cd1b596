package index

import (
	"net/url"
	"strconv"
	"strings"
)

// Query describes one CDX page request.
type Query struct {
	Domain         string
	MatchType      string
	Fields         []string
	CollapseWindow int
	FromYear       int
	ResumeKey      string
}

// NewQuery returns the query used for domain with the standard field list.
func NewQuery(domain string) Query {
	return Query{
		Domain:         domain,
		MatchType:      "prefix",
		Fields:         []string{"urlkey", "timestamp"},
		CollapseWindow: 4,
		FromYear:       2012,
	}
}

// Values encodes the query as CDX form parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("url", q.Domain)
	if q.MatchType != "" {
		v.Set("matchType", q.MatchType)
	}
	if len(q.Fields) > 0 {
		v.Set("fl", strings.Join(q.Fields, ","))
	}
	if q.CollapseWindow > 0 {
		v.Set("collapse", "timestamp:"+strconv.Itoa(q.CollapseWindow))
	}
	if q.FromYear > 0 {
		v.Set("from", strconv.Itoa(q.FromYear))
	}
	v.Set("output", "json")
	v.Set("showResumeKey", "true")
	if q.ResumeKey != "" {
		v.Set("resumeKey", q.ResumeKey)
	}
	return v
}
