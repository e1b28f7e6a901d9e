package model

import "time"

// RunState is the lifecycle state of one runnable execution.
type RunState string

const (
	// StateIdle means the runnable was never run.
	StateIdle RunState = "idle"
	// StateRunning means a process is executing the runnable.
	StateRunning RunState = "running"
	// StatePassed means the process exited with code 0.
	StatePassed RunState = "passed"
	// StateFailed means the process exited non-zero or was signaled.
	StateFailed RunState = "failed"
	// StateErrored means the runnable could not be executed at all.
	StateErrored RunState = "errored"
)

// IsTerminal reports whether s is a final state.
func (s RunState) IsTerminal() bool {
	return s == StatePassed || s == StateFailed || s == StateErrored
}

// TestOutcome is one test result read from the runner's event stream.
type TestOutcome struct {
	Name     string        `json:"name" yaml:"name"`
	Event    string        `json:"event" yaml:"event"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Stdout   string        `json:"stdout,omitempty" yaml:"stdout,omitempty"`
}

// RunStatus is the latest known result of a runnable.
type RunStatus struct {
	ID         ID            `json:"id" yaml:"id"`
	State      RunState      `json:"state" yaml:"state"`
	Message    string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	ExitCode   int           `json:"exitCode" yaml:"exitCode"`
	FinishedAt time.Time     `json:"finishedAt" yaml:"finishedAt"`
	Tests      []TestOutcome `json:"tests,omitempty" yaml:"tests,omitempty"`
}

// Report is a saved set of run results.
type Report struct {
	Version  int         `yaml:"version"`
	Shard    string      `yaml:"shard,omitempty"`
	Runnable []Runnable  `yaml:"runnables,omitempty"`
	Results  []RunStatus `yaml:"results"`
}

// Summary counts results per terminal state.
type Summary struct {
	Passed  int `json:"passed" yaml:"passed"`
	Failed  int `json:"failed" yaml:"failed"`
	Errored int `json:"errored" yaml:"errored"`
}

// Total is the number of counted results.
func (s Summary) Total() int { return s.Passed + s.Failed + s.Errored }

// OK reports whether nothing failed or errored.
func (s Summary) OK() bool { return s.Failed == 0 && s.Errored == 0 }

// Summarize counts the terminal results in results.
func Summarize(results []RunStatus) Summary {
	var s Summary

	for _, st := range results {
		switch st.State {
		case StatePassed:
			s.Passed++
		case StateFailed:
			s.Failed++
		case StateErrored:
			s.Errored++
		}
	}

	return s
}
