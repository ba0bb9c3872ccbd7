// Package reporting reads a results directory back and summarises it.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-allure/types"
	"github.com/ethereum-optimism/infra/op-allure/writer"
)

// NoSuite groups tests that carry no suite label
const NoSuite = "(no suite)"

// Summary is the content of one results directory
type Summary struct {
	Directory   string
	Tests       []*types.TestResult
	Containers  []*types.TestResultContainer
	Attachments int
}

// Count returns the number of tests with the given status
func (s *Summary) Count(status types.Status) int {
	n := 0
	for _, t := range s.Tests {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Failed reports whether any test failed or broke
func (s *Summary) Failed() bool {
	return s.Count(types.StatusFailed) > 0 || s.Count(types.StatusBroken) > 0
}

// Duration is the wall time between the earliest start and the latest stop
func (s *Summary) Duration() time.Duration {
	var start, stop int64
	for _, t := range s.Tests {
		if t.Start != 0 && (start == 0 || t.Start < start) {
			start = t.Start
		}
		if t.Stop > stop {
			stop = t.Stop
		}
	}
	if start == 0 || stop < start {
		return 0
	}
	return time.Duration(stop-start) * time.Millisecond
}

// Suites groups tests by their first suite label
func (s *Summary) Suites() map[string][]*types.TestResult {
	suites := make(map[string][]*types.TestResult)
	for _, t := range s.Tests {
		suite := NoSuite
		if values := t.LabelValues(types.LabelSuite); len(values) > 0 {
			suite = values[0]
		}
		suites[suite] = append(suites[suite], t)
	}
	return suites
}

// LoadResults decodes every result and container file in dir
func LoadResults(ctx context.Context, logger log.Logger, dir string) (*Summary, error) {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	ctx, span := otel.Tracer("results loader").Start(ctx, "load results")
	defer span.End()
	span.SetAttributes(attribute.String("directory", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	summary := &Summary{Directory: dir}
	var testFiles, containerFiles []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
		case strings.HasSuffix(name, writer.TestResultSuffix):
			testFiles = append(testFiles, name)
		case strings.HasSuffix(name, writer.ContainerSuffix):
			containerFiles = append(containerFiles, name)
		case strings.Contains(name, writer.AttachmentSuffix):
			summary.Attachments++
		}
	}

	summary.Tests = make([]*types.TestResult, len(testFiles))
	summary.Containers = make([]*types.TestResultContainer, len(containerFiles))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, name := range testFiles {
		g.Go(func() error {
			return decodeFile(ctx, filepath.Join(dir, name), &summary.Tests[i])
		})
	}
	for i, name := range containerFiles {
		g.Go(func() error {
			return decodeFile(ctx, filepath.Join(dir, name), &summary.Containers[i])
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sort.SliceStable(summary.Tests, func(i, j int) bool {
		if summary.Tests[i].Start != summary.Tests[j].Start {
			return summary.Tests[i].Start < summary.Tests[j].Start
		}
		return summary.Tests[i].Name < summary.Tests[j].Name
	})

	logger.Debug("Loaded results", "directory", dir, "tests", len(summary.Tests),
		"containers", len(summary.Containers), "attachments", summary.Attachments)
	return summary, nil
}

func decodeFile[T any](ctx context.Context, path string, out *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
