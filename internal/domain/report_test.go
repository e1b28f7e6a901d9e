package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	m "runnel.dev/pkg/runnel/internal/model"
)

func TestNewReport(t *testing.T) {
	r := NewReport("0/2", []m.Runnable{{ID: "b"}}, map[m.ID]m.RunStatus{
		"b": {ID: "b", State: m.StatePassed},
		"a": {ID: "a", State: m.StateFailed},
	})

	assert.Equal(t, ReportVersion, r.Version)
	assert.Equal(t, "0/2", r.Shard)
	assert.Equal(t, []m.ID{"a", "b"}, []m.ID{r.Results[0].ID, r.Results[1].ID})
}

func TestMergeReports(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)

	first := m.Report{
		Version:  1,
		Shard:    "0/2",
		Runnable: []m.Runnable{{ID: "a"}, {ID: "b"}},
		Results: []m.RunStatus{
			{ID: "a", State: m.StateFailed, FinishedAt: late},
			{ID: "b", State: m.StatePassed, FinishedAt: early},
		},
	}
	second := m.Report{
		Version:  1,
		Shard:    "1/2",
		Runnable: []m.Runnable{{ID: "b"}, {ID: "c"}},
		Results: []m.RunStatus{
			{ID: "a", State: m.StatePassed, FinishedAt: early},
			{ID: "b", State: m.StateErrored, FinishedAt: late},
			{ID: "c", State: m.StatePassed, FinishedAt: early},
		},
	}

	merged := MergeReports(first, second)

	assert.Empty(t, merged.Shard)
	assert.Equal(t, []m.Runnable{{ID: "a"}, {ID: "b"}, {ID: "c"}}, merged.Runnable)
	assert.Equal(t, []m.RunStatus{
		{ID: "a", State: m.StateFailed, FinishedAt: late},
		{ID: "b", State: m.StateErrored, FinishedAt: late},
		{ID: "c", State: m.StatePassed, FinishedAt: early},
	}, merged.Results)

	assert.Equal(t, m.Summary{Passed: 1, Failed: 1, Errored: 1}, m.Summarize(merged.Results))
}
