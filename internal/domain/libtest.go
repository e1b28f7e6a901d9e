package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	m "runnel.dev/pkg/runnel/internal/model"
)

// libtestEvent is one line of the libtest JSON event stream.
type libtestEvent struct {
	Type     string   `json:"type"`
	Event    string   `json:"event"`
	Name     string   `json:"name"`
	Stdout   string   `json:"stdout"`
	ExecTime *float64 `json:"exec_time"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Ignored  int      `json:"ignored"`
	Filtered int      `json:"filtered_out"`
}

// runReport is what the event stream tells about one run.
type runReport struct {
	tests    []m.TestOutcome
	duration time.Duration
	summary  string
	failures []string
}

// parseLibtest reads the JSON lines of stdout. Lines that are not events,
// such as output of a binary run, are ignored.
func parseLibtest(lines []string) runReport {
	var rep runReport

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var ev libtestEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "test":
			if ev.Event == "started" {
				continue
			}

			out := m.TestOutcome{Name: ev.Name, Event: ev.Event, Stdout: ev.Stdout}
			if ev.ExecTime != nil {
				out.Duration = seconds(*ev.ExecTime)
			}

			rep.tests = append(rep.tests, out)

			if ev.Event == "failed" || ev.Event == "timeout" {
				msg := ev.Name + " " + ev.Event
				if ev.Stdout != "" {
					msg += ":\n" + strings.TrimRight(ev.Stdout, "\n")
				}

				rep.failures = append(rep.failures, msg)
			}
		case "suite":
			if ev.Event == "started" {
				continue
			}

			rep.summary = fmt.Sprintf("%s: %d passed, %d failed, %d ignored, %d filtered out",
				ev.Event, ev.Passed, ev.Failed, ev.Ignored, ev.Filtered)

			if ev.ExecTime != nil {
				rep.duration += seconds(*ev.ExecTime)
			}
		}
	}

	if rep.duration == 0 {
		for _, t := range rep.tests {
			rep.duration += t.Duration
		}
	}

	return rep
}

func (rep runReport) message() string {
	if len(rep.failures) > 0 {
		return strings.Join(rep.failures, "\n")
	}

	return rep.summary
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
