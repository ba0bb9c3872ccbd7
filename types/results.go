package types

import (
	"slices"

	"github.com/google/uuid"
)

// Label is a name/value pair used by the report generator for grouping and filtering
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Well known label names understood by the report generator
const (
	LabelSuite       = "suite"
	LabelParentSuite = "parentSuite"
	LabelSubSuite    = "subSuite"
	LabelEpic        = "epic"
	LabelFeature     = "feature"
	LabelStory       = "story"
	LabelSeverity    = "severity"
	LabelOwner       = "owner"
	LabelTag         = "tag"
	LabelThread      = "thread"
	LabelHost        = "host"
	LabelPackage     = "package"
	LabelTestType    = "testType"
)

// NewLabel creates a label
func NewLabel(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Link points from a result to an external resource (issue tracker, test management system)
type Link struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ParameterMode controls how the report generator displays a parameter value
type ParameterMode string

const (
	ParameterModeDefault ParameterMode = ""
	ParameterModeMasked  ParameterMode = "masked"
	ParameterModeHidden  ParameterMode = "hidden"
)

// Parameter is a named argument of a test or step
type Parameter struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Excluded bool          `json:"excluded,omitempty"`
	Mode     ParameterMode `json:"mode,omitempty"`
}

// Attachment references a binary file written next to the results
type Attachment struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Source string `json:"source"`
}

// ExecutableItem holds the fields shared by fixtures, tests and steps.
// Timestamps are milliseconds since the Unix epoch.
type ExecutableItem struct {
	Name            string         `json:"name,omitempty"`
	Status          Status         `json:"status,omitempty"`
	StatusDetails   *StatusDetails `json:"statusDetails,omitempty"`
	Stage           Stage          `json:"stage,omitempty"`
	Description     string         `json:"description,omitempty"`
	DescriptionHTML string         `json:"descriptionHtml,omitempty"`
	Steps           []*StepResult  `json:"steps,omitempty"`
	Attachments     []Attachment   `json:"attachments,omitempty"`
	Parameters      []Parameter    `json:"parameters,omitempty"`
	Start           int64          `json:"start,omitempty"`
	Stop            int64          `json:"stop,omitempty"`
}

// SetStatus sets the status and derives status details from err
func (e *ExecutableItem) SetStatus(status Status, err error) {
	e.Status = status
	if details := NewStatusDetails(err); details != nil {
		e.StatusDetails = details
	}
}

// AddParameter appends a parameter
func (e *ExecutableItem) AddParameter(name, value string) {
	e.Parameters = append(e.Parameters, Parameter{Name: name, Value: value})
}

// StepResult is a nested unit of work inside a fixture, test or another step
type StepResult struct {
	ExecutableItem
}

// FixtureResult is the record of a before or after hook
type FixtureResult struct {
	ExecutableItem
}

// TestResult is the record of a single test case
type TestResult struct {
	UUID       string `json:"uuid"`
	HistoryID  string `json:"historyId,omitempty"`
	TestCaseID string `json:"testCaseId,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	ExecutableItem
	Labels []Label `json:"labels,omitempty"`
	Links  []Link  `json:"links,omitempty"`
}

// AddLabel appends a label
func (t *TestResult) AddLabel(name, value string) {
	t.Labels = append(t.Labels, NewLabel(name, value))
}

// LabelValues returns the values of every label with the given name
func (t *TestResult) LabelValues(name string) []string {
	var values []string
	for _, l := range t.Labels {
		if l.Name == name {
			values = append(values, l.Value)
		}
	}
	return values
}

// TestResultContainer groups tests and child containers that share fixtures
type TestResultContainer struct {
	UUID     string           `json:"uuid"`
	Name     string           `json:"name,omitempty"`
	Children []string         `json:"children,omitempty"`
	Befores  []*FixtureResult `json:"befores,omitempty"`
	Afters   []*FixtureResult `json:"afters,omitempty"`
	Links    []Link           `json:"links,omitempty"`
	Start    int64            `json:"start,omitempty"`
	Stop     int64            `json:"stop,omitempty"`
}

// HasChild reports whether uuid is listed as a child of the container
func (c *TestResultContainer) HasChild(uuid string) bool {
	return slices.Contains(c.Children, uuid)
}

// NewTestResult creates a test result with a generated uuid
func NewTestResult(name string) *TestResult {
	return &TestResult{
		UUID:           uuid.New().String(),
		ExecutableItem: ExecutableItem{Name: name},
	}
}

// NewTestResultContainer creates a container with a generated uuid
func NewTestResultContainer(name string) *TestResultContainer {
	return &TestResultContainer{
		UUID: uuid.New().String(),
		Name: name,
	}
}

// NewFixtureResult creates a named fixture
func NewFixtureResult(name string) *FixtureResult {
	return &FixtureResult{ExecutableItem: ExecutableItem{Name: name}}
}

// NewStepResult creates a named step
func NewStepResult(name string) *StepResult {
	return &StepResult{ExecutableItem: ExecutableItem{Name: name}}
}
