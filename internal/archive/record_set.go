package archive

// RecordSet is an insertion-ordered set of IndexRecords. Merging the same
// records twice leaves the set unchanged. Not safe for concurrent use.
type RecordSet struct {
	seen    map[IndexRecord]struct{}
	records []IndexRecord
}

// NewRecordSet seeds a set with existing records, dropping duplicates.
func NewRecordSet(records ...IndexRecord) *RecordSet {
	s := &RecordSet{seen: make(map[IndexRecord]struct{}, len(records))}
	s.Merge(records)
	return s
}

// Add inserts rec and reports whether it was new.
func (s *RecordSet) Add(rec IndexRecord) bool {
	if _, ok := s.seen[rec]; ok {
		return false
	}
	s.seen[rec] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

// Merge adds all records and returns how many were new.
func (s *RecordSet) Merge(records []IndexRecord) int {
	added := 0
	for _, rec := range records {
		if s.Add(rec) {
			added++
		}
	}
	return added
}

// Len returns the number of unique records.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in first-seen order.
func (s *RecordSet) Records() []IndexRecord {
	out := make([]IndexRecord, len(s.records))
	copy(out, s.records)
	return out
}
