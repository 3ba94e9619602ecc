package activity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RecordAssignsIDAndTimestamp(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{Type: TypeToolCall, ToolName: "retrieve-a-page", Status: "success"})

	records := l.List(Filter{})
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestLog_RecordTruncatesOversizedResponse(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{ToolName: "post-search", Response: strings.Repeat("a", MaxResponseSize+100)})

	records := l.List(Filter{})
	require.Len(t, records, 1)
	assert.True(t, records[0].ResponseTruncated)
	assert.LessOrEqual(t, len(records[0].Response), MaxResponseSize+len("...[truncated]"))
}

func TestLog_DropsOldestWhenOverCapacity(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Record(Record{ToolName: "retrieve-a-page", Status: "success"})
	}

	assert.Equal(t, 3, l.Len())
}

func TestLog_ListReturnsNewestFirst(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{ToolName: "first"})
	l.Record(Record{ToolName: "second"})
	l.Record(Record{ToolName: "third"})

	records := l.List(Filter{})
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].ToolName)
	assert.Equal(t, "second", records[1].ToolName)
	assert.Equal(t, "first", records[2].ToolName)
}

func TestLog_ListFiltersByTypeToolNameAndStatus(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{Type: TypeToolCall, ToolName: "retrieve-a-page", Status: "success"})
	l.Record(Record{Type: TypePolicyDecision, ToolName: "create-a-page", Status: "blocked"})
	l.Record(Record{Type: TypeToolCall, ToolName: "retrieve-a-page", Status: "error"})

	byType := l.List(Filter{Types: []Type{TypePolicyDecision}})
	require.Len(t, byType, 1)
	assert.Equal(t, "create-a-page", byType[0].ToolName)

	byTool := l.List(Filter{ToolName: "retrieve-a-page"})
	assert.Len(t, byTool, 2)

	byStatus := l.List(Filter{Status: "error"})
	require.Len(t, byStatus, 1)
	assert.Equal(t, "retrieve-a-page", byStatus[0].ToolName)
}

func TestLog_ListFiltersByTimeRange(t *testing.T) {
	l := NewLog(10)
	now := time.Now().UTC()
	l.Record(Record{ToolName: "old", Timestamp: now.Add(-time.Hour)})
	l.Record(Record{ToolName: "recent", Timestamp: now})

	records := l.List(Filter{StartTime: now.Add(-time.Minute)})
	require.Len(t, records, 1)
	assert.Equal(t, "recent", records[0].ToolName)
}

func TestLog_ListRespectsLimit(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 5; i++ {
		l.Record(Record{ToolName: "retrieve-a-page"})
	}

	records := l.List(Filter{Limit: 2})
	assert.Len(t, records, 2)
}

func TestLog_ClearEmptiesBuffer(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{ToolName: "retrieve-a-page"})
	require.Equal(t, 1, l.Len())

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestLog_RecordAsyncEventuallyVisible(t *testing.T) {
	l := NewLog(10)
	l.RecordAsync(Record{ToolName: "retrieve-a-page"})

	assert.Eventually(t, func() bool {
		return l.Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFormatSeqID_UniquePerCall(t *testing.T) {
	l := NewLog(10)
	l.Record(Record{ToolName: "a"})
	l.Record(Record{ToolName: "b"})

	records := l.List(Filter{})
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}
