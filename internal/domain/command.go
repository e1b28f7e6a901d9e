package domain

import (
	"fmt"

	"runnel.dev/pkg/runnel/internal/adapter"
	m "runnel.dev/pkg/runnel/internal/model"
)

// DefaultProgram is the test runner invoked for runnables.
const DefaultProgram = "cargo"

// CommandOptions parameterize the commands built for runnables.
type CommandOptions struct {
	Program   string
	ExtraArgs []string
	Dir       string
}

// harnessArgs select one test by its exact path and ask libtest for a
// machine-readable event stream with timings.
var harnessArgs = []string{"--exact", "--nocapture", "-Z", "unstable-options", "--format=json", "--report-time"}

// BuildCommand maps a runnable to the command executing it.
func BuildCommand(r m.Runnable, opts CommandOptions) (adapter.CommandSpec, error) {
	if !r.IsFunction() {
		return adapter.CommandSpec{}, fmt.Errorf("%w: %s is a doctest", ErrNotExecutable, r.ID)
	}

	program := opts.Program
	if program == "" {
		program = DefaultProgram
	}

	loc := r.Location

	var args []string

	switch r.FuncKind {
	case m.FuncBin:
		args = append(args, mainArgs(loc)...)
		args = append(args, opts.ExtraArgs...)
	case m.FuncTest, m.FuncBench:
		sub := "test"
		if r.FuncKind == m.FuncBench {
			sub = "bench"
		}

		args = append(args, sub)
		args = append(args, packageArgs(loc)...)
		args = append(args, targetArgs(loc.Target)...)
		args = append(args, opts.ExtraArgs...)
		args = append(args, loc.Path, "--")
		args = append(args, harnessArgs...)
	default:
		return adapter.CommandSpec{}, fmt.Errorf("%w: unknown function kind %q", ErrNotExecutable, r.FuncKind)
	}

	return adapter.CommandSpec{Program: program, Args: args, Dir: opts.Dir}, nil
}

// mainArgs run the target whose root holds a main function. Test and bench
// targets with a main are built without the libtest harness, so they run
// whole and take no filter.
func mainArgs(loc m.Location) []string {
	sub := "run"

	switch loc.Target.Kind {
	case m.TargetTest:
		sub = "test"
	case m.TargetBench:
		sub = "bench"
	}

	args := append([]string{sub}, packageArgs(loc)...)

	switch loc.Target.Kind {
	case m.TargetTest, m.TargetBench, m.TargetExample:
		return append(args, targetArgs(loc.Target)...)
	}

	name := loc.Target.Name
	if name == "" || loc.Target.Kind == m.TargetLib {
		name = loc.Crate
	}

	return append(args, "--bin", name)
}

func packageArgs(loc m.Location) []string {
	if loc.Crate == "" {
		return nil
	}

	return []string{"-p", loc.Crate}
}

func targetArgs(t m.Target) []string {
	switch t.Kind {
	case m.TargetLib:
		return []string{"--lib"}
	case m.TargetBin:
		return []string{"--bin", t.Name}
	case m.TargetTest:
		return []string{"--test", t.Name}
	case m.TargetBench:
		return []string{"--bench", t.Name}
	case m.TargetExample:
		return []string{"--example", t.Name}
	}

	return nil
}
