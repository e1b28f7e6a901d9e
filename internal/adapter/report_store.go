package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	m "runnel.dev/pkg/runnel/internal/model"
)

const (
	// ReportFile is the name of a saved report inside its directory.
	ReportFile = "report.yaml"
	// ShardPrefix prefixes the per-shard report directories written by sharded runs.
	ShardPrefix = "shard_"
)

// ErrNoReport is returned when a directory holds no saved report.
var ErrNoReport = errors.New("no report found")

// ReportStore persists run reports as YAML.
type ReportStore interface {
	SaveReport(dir m.Path, report m.Report) error
	LoadReport(dir m.Path) (m.Report, error)
	ShardDirs(dir m.Path) ([]m.Path, error)
}

// LocalReportStore keeps reports on the local filesystem.
type LocalReportStore struct{}

// NewLocalReportStore constructs a LocalReportStore.
func NewLocalReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

// SaveReport writes report to dir/report.yaml, replacing any previous one.
func (s *LocalReportStore) SaveReport(dir m.Path, report m.Report) error {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(report); err != nil {
		slog.Error("Failed to encode report", "dir", dir, "error", err)
		return fmt.Errorf("encode report: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		slog.Error("Failed to create report directory", "dir", dir, "error", err)
		return fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(string(dir), ReportFile)

	tmp, err := os.CreateTemp(string(dir), ".report-*.yaml")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write report: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write report: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		slog.Error("Failed to save report", "path", path, "error", err)

		return fmt.Errorf("save report: %w", err)
	}

	slog.Debug("Saved report", "path", path, "results", len(report.Results))

	return nil
}

// LoadReport reads dir/report.yaml.
func (s *LocalReportStore) LoadReport(dir m.Path) (m.Report, error) {
	path := filepath.Join(string(dir), ReportFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m.Report{}, fmt.Errorf("%w in %s", ErrNoReport, dir)
	}

	if err != nil {
		slog.Error("Failed to read report", "path", path, "error", err)
		return m.Report{}, fmt.Errorf("read report: %w", err)
	}

	var report m.Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		slog.Error("Failed to decode report", "path", path, "error", err)
		return m.Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}

	return report, nil
}

// ShardDirs lists the shard_* subdirectories of dir in name order.
func (s *LocalReportStore) ShardDirs(dir m.Path) ([]m.Path, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var shards []m.Path

	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), ShardPrefix) {
			shards = append(shards, m.Path(filepath.Join(string(dir), e.Name())))
		}
	}

	slices.Sort(shards)

	return shards, nil
}
