package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSetMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	page := []IndexRecord{
		{Timestamp: "20120101000000", URL: "example.org/"},
		{Timestamp: "20130101000000", URL: "example.org/about"},
		{Timestamp: "20120101000000", URL: "example.org/"},
	}

	set := NewRecordSet()
	assert.Equal(t, 2, set.Merge(page))
	first := set.Records()

	assert.Equal(t, 0, set.Merge(page))
	assert.Equal(t, first, set.Records())
	assert.Equal(t, 2, set.Len())
}

func TestRecordSetKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	set := NewRecordSet(IndexRecord{Timestamp: "2", URL: "b"})
	set.Add(IndexRecord{Timestamp: "1", URL: "a"})
	set.Add(IndexRecord{Timestamp: "2", URL: "b"})

	assert.Equal(t, []IndexRecord{{Timestamp: "2", URL: "b"}, {Timestamp: "1", URL: "a"}}, set.Records())
}

func TestRecordsReturnsCopy(t *testing.T) {
	t.Parallel()

	set := NewRecordSet(IndexRecord{Timestamp: "1", URL: "a"})
	out := set.Records()
	out[0].URL = "mutated"
	assert.Equal(t, "a", set.Records()[0].URL)
}

func TestPaginationStateFinished(t *testing.T) {
	t.Parallel()

	assert.True(t, PaginationState{ResumeKey: ResumeFinished}.Finished())
	assert.False(t, PaginationState{ResumeKey: "abc"}.Finished())
	assert.False(t, PaginationState{}.Finished())
}

func TestNewPaginationStateIsEmpty(t *testing.T) {
	state := NewPaginationState("example.org")
	assert.Equal(t, "example.org", state.Domain)
	assert.NotNil(t, state.Records)
	assert.Empty(t, state.Records)
	assert.False(t, state.Finished())
}
