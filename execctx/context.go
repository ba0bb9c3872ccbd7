// Package execctx tracks which container, fixture, test and steps are active
// in one logical flow of test execution.
//
// A Context is an immutable value. Every transition returns a new Context and
// leaves the receiver untouched, so keeping a snapshot is just keeping a copy
// of the value.
package execctx

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

const (
	msgNoContainerToExclude    = "Unable to exclude the latest container from the context because no container context has been set up."
	msgFixtureBlocksContainer  = "Unable to exclude the latest container from the context because a fixture context exists."
	msgTestBlocksContainer     = "Unable to exclude the latest container from the context because a test context exists."
	msgFixtureWithoutContainer = "Unable to set up the fixture context because there is no container context."
	msgNestedFixture           = "Unable to set up the fixture context because another fixture context already exists."
	msgNestedTest              = "Unable to set up the test context because another test context already exists."
	msgTestInsideFixture       = "Unable to set up the test context because a fixture context is currently active."
	msgStepWithoutParent       = "Unable to set up the step context because no test or fixture context exists."
	msgNoStepToExclude         = "Unable to exclude the latest step from the context because no step context has been set up."
	msgNoContainer             = "No container context is active."
	msgNoFixture               = "No fixture context is active."
	msgNoTest                  = "No test context is active."
	msgNoStep                  = "No step context is active."
	msgNoStepContainer         = "No test, fixture, or step context is active."
)

// Context is a snapshot of the nesting state of one logical flow.
// The zero value is an empty context.
type Context struct {
	containers stack[*types.TestResultContainer]
	fixture    *types.FixtureResult
	test       *types.TestResult
	steps      stack[*types.StepResult]
}

// Empty returns a context with nothing active
func Empty() Context {
	return Context{}
}

// WithContainer pushes c on top of the container stack
func (c Context) WithContainer(container *types.TestResultContainer) (Context, error) {
	if container == nil {
		return c, types.NewArgumentError("container")
	}
	c.containers = c.containers.push(container)
	return c, nil
}

// WithNoLastContainer pops the most recent container.
// A container cannot be excluded while a fixture or test it owns is open.
func (c Context) WithNoLastContainer() (Context, error) {
	if c.containers.empty() {
		return c, types.NewInvalidStateError(msgNoContainerToExclude)
	}
	if c.fixture != nil {
		return c, types.NewInvalidStateError(msgFixtureBlocksContainer)
	}
	if c.test != nil {
		return c, types.NewInvalidStateError(msgTestBlocksContainer)
	}
	c.containers = c.containers.pop()
	return c, nil
}

// WithFixtureContext makes f the active fixture. Steps left over from a test
// that ran before the fixture are discarded.
func (c Context) WithFixtureContext(f *types.FixtureResult) (Context, error) {
	if f == nil {
		return c, types.NewArgumentError("fixture")
	}
	if c.containers.empty() {
		return c, types.NewInvalidStateError(msgFixtureWithoutContainer)
	}
	if c.fixture != nil {
		return c, types.NewInvalidStateError(msgNestedFixture)
	}
	c.fixture = f
	c.steps = stack[*types.StepResult]{}
	return c, nil
}

// WithNoFixtureContext clears the fixture and every step started under it
func (c Context) WithNoFixtureContext() Context {
	c.fixture = nil
	c.steps = stack[*types.StepResult]{}
	return c
}

// WithTestContext makes t the active test
func (c Context) WithTestContext(t *types.TestResult) (Context, error) {
	if t == nil {
		return c, types.NewArgumentError("test")
	}
	if c.test != nil {
		return c, types.NewInvalidStateError(msgNestedTest)
	}
	if c.fixture != nil {
		return c, types.NewInvalidStateError(msgTestInsideFixture)
	}
	c.test = t
	return c, nil
}

// WithNoTestContext clears the test together with any fixture and steps
func (c Context) WithNoTestContext() Context {
	c.test = nil
	c.fixture = nil
	c.steps = stack[*types.StepResult]{}
	return c
}

// WithStep pushes s on top of the step stack
func (c Context) WithStep(s *types.StepResult) (Context, error) {
	if s == nil {
		return c, types.NewArgumentError("step")
	}
	if c.test == nil && c.fixture == nil {
		return c, types.NewInvalidStateError(msgStepWithoutParent)
	}
	c.steps = c.steps.push(s)
	return c, nil
}

// WithNoLastStep pops the most recent step
func (c Context) WithNoLastStep() (Context, error) {
	if c.steps.empty() {
		return c, types.NewInvalidStateError(msgNoStepToExclude)
	}
	c.steps = c.steps.pop()
	return c, nil
}

// WithNoStepContext drops every active step
func (c Context) WithNoStepContext() Context {
	c.steps = stack[*types.StepResult]{}
	return c
}

func (c Context) HasContainer() bool { return !c.containers.empty() }
func (c Context) HasFixture() bool   { return c.fixture != nil }
func (c Context) HasTest() bool      { return c.test != nil }
func (c Context) HasStep() bool      { return !c.steps.empty() }

// ContainerStack returns the active containers, most recent first
func (c Context) ContainerStack() []*types.TestResultContainer {
	return c.containers.items()
}

// StepStack returns the active steps, most recent first
func (c Context) StepStack() []*types.StepResult {
	return c.steps.items()
}

// CurrentContainer returns the most recently started container
func (c Context) CurrentContainer() (*types.TestResultContainer, error) {
	container, ok := c.containers.peek()
	if !ok {
		return nil, types.NewInvalidStateError(msgNoContainer)
	}
	return container, nil
}

// CurrentFixture returns the active fixture
func (c Context) CurrentFixture() (*types.FixtureResult, error) {
	if c.fixture == nil {
		return nil, types.NewInvalidStateError(msgNoFixture)
	}
	return c.fixture, nil
}

// CurrentTest returns the active test
func (c Context) CurrentTest() (*types.TestResult, error) {
	if c.test == nil {
		return nil, types.NewInvalidStateError(msgNoTest)
	}
	return c.test, nil
}

// CurrentStep returns the innermost active step
func (c Context) CurrentStep() (*types.StepResult, error) {
	step, ok := c.steps.peek()
	if !ok {
		return nil, types.NewInvalidStateError(msgNoStep)
	}
	return step, nil
}

// CurrentStepContainer resolves the item that new steps and attachments belong to:
// the innermost step, else the fixture, else the test.
func (c Context) CurrentStepContainer() (*types.ExecutableItem, error) {
	if step, ok := c.steps.peek(); ok {
		return &step.ExecutableItem, nil
	}
	if c.fixture != nil {
		return &c.fixture.ExecutableItem, nil
	}
	if c.test != nil {
		return &c.test.ExecutableItem, nil
	}
	return nil, types.NewInvalidStateError(msgNoStepContainer)
}

func (c Context) String() string {
	var b strings.Builder
	b.WriteString("containers=[")
	for i, container := range c.containers.items() {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(container.UUID)
	}
	b.WriteString("]")
	if c.fixture != nil {
		fmt.Fprintf(&b, " fixture=%q", c.fixture.Name)
	}
	if c.test != nil {
		fmt.Fprintf(&b, " test=%s", c.test.UUID)
	}
	fmt.Fprintf(&b, " steps=%d", c.steps.size)
	return b.String()
}
