package domain

import (
	"cmp"
	"slices"

	m "runnel.dev/pkg/runnel/internal/model"
)

// ReportVersion is the format version written into new reports.
const ReportVersion = 1

// NewReport builds a report from the runnables of a run and their results,
// ordered by id.
func NewReport(shard string, runnables []m.Runnable, results map[m.ID]m.RunStatus) m.Report {
	report := m.Report{Version: ReportVersion, Shard: shard, Runnable: slices.Clone(runnables)}

	for _, st := range results {
		report.Results = append(report.Results, st)
	}

	slices.SortFunc(report.Results, func(a, b m.RunStatus) int { return cmp.Compare(a.ID, b.ID) })

	return report
}

// MergeReports combines reports from several shards. When two reports hold
// a result for the same id, the one that finished last wins. Runnables are
// kept once per id in first-seen order.
func MergeReports(reports ...m.Report) m.Report {
	merged := m.Report{Version: ReportVersion}

	seen := make(map[m.ID]struct{})
	results := make(map[m.ID]m.RunStatus)

	for _, r := range reports {
		merged.Version = max(merged.Version, r.Version)

		for _, rn := range r.Runnable {
			if _, ok := seen[rn.ID]; ok {
				continue
			}

			seen[rn.ID] = struct{}{}
			merged.Runnable = append(merged.Runnable, rn)
		}

		for _, st := range r.Results {
			if prev, ok := results[st.ID]; ok && prev.FinishedAt.After(st.FinishedAt) {
				continue
			}

			results[st.ID] = st
		}
	}

	for _, st := range results {
		merged.Results = append(merged.Results, st)
	}

	slices.SortFunc(merged.Results, func(a, b m.RunStatus) int { return cmp.Compare(a.ID, b.ID) })

	return merged
}
