package reporting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

// FormatSummary renders the summary as a table grouped by suite
func FormatSummary(w io.Writer, summary *Summary, title string) {
	if title == "" {
		title = "Test Results"
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", title, formatDuration(summary.Duration())))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Tests", "Passed", "Failed", "Broken", "Skipped", "Status", "Message",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Broken", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Message", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	suites := summary.Suites()
	names := make([]string, 0, len(suites))
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tests := suites[name]
		suite := &Summary{Tests: tests}
		t.AppendRow(table.Row{
			"Suite",
			name,
			formatDuration(suite.Duration()),
			"-",
			suite.Count(types.StatusPassed),
			suite.Count(types.StatusFailed),
			suite.Count(types.StatusBroken),
			suite.Count(types.StatusSkipped),
			statusString(suiteStatus(suite)),
			"",
		})

		for i, test := range tests {
			prefix := "├─"
			if i == len(tests)-1 {
				prefix = "└─"
			}
			message := ""
			if test.StatusDetails != nil {
				message = test.StatusDetails.Message
			}
			t.AppendRow(table.Row{
				"",
				fmt.Sprintf("%s %s", prefix, test.Name),
				formatDuration(time.Duration(test.Stop-test.Start) * time.Millisecond),
				"1",
				boolToInt(test.Status == types.StatusPassed),
				boolToInt(test.Status == types.StatusFailed),
				boolToInt(test.Status == types.StatusBroken),
				boolToInt(test.Status == types.StatusSkipped),
				statusString(test.Status),
				message,
			})
		}
		t.AppendSeparator()
	}

	overall := suiteStatus(summary)
	switch overall {
	case types.StatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StatusSkipped, types.StatusNone:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(summary.Duration()),
		len(summary.Tests),
		summary.Count(types.StatusPassed),
		summary.Count(types.StatusFailed),
		summary.Count(types.StatusBroken),
		summary.Count(types.StatusSkipped),
		statusString(overall),
		"",
	})

	t.Render()
}

// suiteStatus is broken if any test broke, else failed if any test failed,
// else passed if any test passed, else skipped
func suiteStatus(s *Summary) types.Status {
	switch {
	case len(s.Tests) == 0:
		return types.StatusNone
	case s.Count(types.StatusBroken) > 0:
		return types.StatusBroken
	case s.Count(types.StatusFailed) > 0:
		return types.StatusFailed
	case s.Count(types.StatusPassed) > 0:
		return types.StatusPassed
	default:
		return types.StatusSkipped
	}
}

func statusString(status types.Status) string {
	switch status {
	case types.StatusPassed:
		return "✓ passed"
	case types.StatusFailed:
		return "✗ failed"
	case types.StatusBroken:
		return "! broken"
	case types.StatusSkipped:
		return "- skipped"
	default:
		return "?"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
