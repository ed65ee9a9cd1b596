package archive

import (
	"time"
)

// ResumeFinished is the resume key sentinel marking a domain whose index has
// been fully paginated. No further index requests are issued once it is set.
const ResumeFinished = "finished"

// IndexRecord identifies one archived snapshot. Two records are equal when
// both fields are equal.
type IndexRecord struct {
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

// PaginationState is the persisted progress of one domain's index run.
type PaginationState struct {
	Domain    string        `json:"domain"`
	Header    []string      `json:"header"`
	ResumeKey string        `json:"resume_key"`
	Records   []IndexRecord `json:"urls"`
}

// NewPaginationState returns an empty state for domain.
func NewPaginationState(domain string) PaginationState {
	return PaginationState{Domain: domain, Records: []IndexRecord{}}
}

// Finished reports whether pagination for the domain is exhausted.
func (s PaginationState) Finished() bool {
	return s.ResumeKey == ResumeFinished
}

// RateState is a point-in-time view of the admission gate and escalation
// state machine.
type RateState struct {
	Limit        int       `json:"limit"`
	InFlight     int       `json:"in_flight"`
	DDOSLevel    int       `json:"ddos_level"`
	CoolOffUntil time.Time `json:"cool_off_until,omitempty"`
}

// DispatchProgress is the scalar checkpoint of a fetch run.
type DispatchProgress struct {
	LastIndex int `json:"last_index"`
}
