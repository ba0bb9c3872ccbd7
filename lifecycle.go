// Package allure records test execution results in the Allure results format.
//
// A Lifecycle tracks containers, fixtures, tests and steps as they start and
// stop, and hands finished entities to a writer. Every operation resolves its
// target from the execution context of the logical flow the caller's
// context.Context belongs to; use Fork to start independent flows for tests
// that run in parallel.
//
// A context that was never passed through Fork, RunInContext or InFlow
// belongs to the lifecycle's root flow. Every such context shares that one
// flow, even two unrelated ones like the contexts of two parallel tests.
package allure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-allure/execctx"
	"github.com/ethereum-optimism/infra/op-allure/flow"
	"github.com/ethereum-optimism/infra/op-allure/metrics"
	"github.com/ethereum-optimism/infra/op-allure/storage"
	"github.com/ethereum-optimism/infra/op-allure/types"
	"github.com/ethereum-optimism/infra/op-allure/writer"
)

// Lifecycle is the entry point for recording results.
// Update callbacks run while the lifecycle holds its entity lock and must not
// call back into the lifecycle.
type Lifecycle struct {
	cfg      Config
	log      log.Logger
	writer   writer.Writer
	flows    *flow.Store
	entities *storage.Store
	tracer   trace.Tracer
	now      func() time.Time

	// mu guards entity fields. Mutations take the write lock; handing an
	// entity to the writer takes the read lock.
	mu sync.RWMutex
}

// New creates a lifecycle writing to cfg.Directory
func New(cfg Config) (*Lifecycle, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Directory == "" {
		cfg.Directory = DefaultResultsDirectory
	}

	w, err := writer.NewFileSystemWriter(writer.Config{
		Directory:    cfg.Directory,
		IndentOutput: cfg.IndentOutput,
		Log:          cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create results writer: %w", err)
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter creates a lifecycle handing results to w
func NewWithWriter(cfg Config, w writer.Writer) (*Lifecycle, error) {
	if w == nil {
		return nil, types.NewArgumentError("writer")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	if cfg.CleanOnStart {
		if err := w.Cleanup(); err != nil {
			return nil, fmt.Errorf("failed to clean results directory: %w", err)
		}
	}

	cfg.Log.Debug("NewLifecycle()", "directory", cfg.Directory, "title", cfg.Title,
		"links", len(cfg.Links), "failExceptions", len(cfg.FailExceptions))

	flows := flow.NewStore()
	flows.OnUnbound = func() {
		cfg.Log.Warn("Context is not bound to a flow, sharing the root flow; use Fork for parallel tests")
	}

	return &Lifecycle{
		cfg:      cfg,
		log:      cfg.Log,
		writer:   w,
		flows:    flows,
		entities: storage.New(),
		tracer:   otel.Tracer("allure lifecycle"),
		now:      time.Now,
	}, nil
}

// Config returns the configuration the lifecycle was created with
func (l *Lifecycle) Config() Config {
	return l.cfg
}

// StatusFor maps an error returned by user code to a result status
func (l *Lifecycle) StatusFor(err error) types.Status {
	return types.DetermineStatus(err, l.cfg.FailExceptions)
}

func (l *Lifecycle) timestamp() int64 {
	return l.now().UnixMilli()
}

// mutate runs fn under the entity lock
func (l *Lifecycle) mutate(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

func (l *Lifecycle) stageOf(item *types.ExecutableItem) types.Stage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return item.Stage
}

func (l *Lifecycle) checkAdvance(item *types.ExecutableItem, next types.Stage) error {
	if stage := l.stageOf(item); !stage.CanAdvanceTo(next) {
		return types.NewInvalidStateError(fmt.Sprintf("cannot move %q from stage %q to %q", item.Name, stage, next))
	}
	return nil
}

// checkTracked fails if the entity has been written or was never registered
func (l *Lifecycle) checkTracked(id string) error {
	_, err := l.entities.Get(id)
	return err
}

// checkOwnerTracked fails if the test, or for a fixture the container, that
// owns the innermost item of c has been written
func (l *Lifecycle) checkOwnerTracked(c execctx.Context) error {
	if c.HasTest() {
		test, err := c.CurrentTest()
		if err != nil {
			return err
		}
		if err := l.checkTracked(test.UUID); err != nil {
			return err
		}
	}
	if c.HasFixture() && c.HasContainer() {
		container, err := c.CurrentContainer()
		if err != nil {
			return err
		}
		return l.checkTracked(container.UUID)
	}
	return nil
}

// Containers

// StartTestContainer registers container, makes it the current container of
// the flow and lists it as a child of the previous current container
func (l *Lifecycle) StartTestContainer(ctx context.Context, container *types.TestResultContainer) error {
	if container == nil {
		return types.NewArgumentError("container")
	}
	if container.UUID == "" {
		container.UUID = uuid.New().String()
	}

	var parent *types.TestResultContainer
	next, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		next, err := c.WithContainer(container)
		if err != nil {
			return c, err
		}
		if err := l.entities.Put(container.UUID, container); err != nil {
			return c, err
		}
		if c.HasContainer() {
			parent, _ = c.CurrentContainer()
		}
		return next, nil
	})
	if err != nil {
		return err
	}

	l.mutate(func() {
		container.Start = l.timestamp()
		if parent != nil && !parent.HasChild(container.UUID) {
			parent.Children = append(parent.Children, container.UUID)
		}
	})
	metrics.RecordLifecycleEvent(metrics.EntityContainer, metrics.EventStarted)
	l.log.Debug("Started container", "uuid", container.UUID, "name", container.Name, "context", next.String())
	return nil
}

func (l *Lifecycle) currentContainer(ctx context.Context) (*types.TestResultContainer, error) {
	container, err := l.flows.Current(ctx).CurrentContainer()
	if err != nil {
		return nil, err
	}
	if err := l.checkTracked(container.UUID); err != nil {
		return nil, err
	}
	return container, nil
}

// UpdateTestContainer applies fn to the current container
func (l *Lifecycle) UpdateTestContainer(ctx context.Context, fn func(*types.TestResultContainer)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	container, err := l.currentContainer(ctx)
	if err != nil {
		return err
	}
	l.mutate(func() { fn(container) })
	return nil
}

// StopTestContainer records the stop time of the current container.
// The container stays current until it is written.
func (l *Lifecycle) StopTestContainer(ctx context.Context) error {
	container, err := l.currentContainer(ctx)
	if err != nil {
		return err
	}
	l.stopContainer(container)
	return nil
}

func (l *Lifecycle) stopContainer(container *types.TestResultContainer) {
	l.mutate(func() { container.Stop = l.timestamp() })
	metrics.RecordLifecycleEvent(metrics.EntityContainer, metrics.EventStopped)
	l.log.Debug("Stopped container", "uuid", container.UUID)
}

// WriteTestContainer pops the current container, stops tracking it and
// hands it to the writer
func (l *Lifecycle) WriteTestContainer(ctx context.Context) error {
	var container *types.TestResultContainer
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		next, err := c.WithNoLastContainer()
		if err != nil {
			return c, err
		}
		current, err := c.CurrentContainer()
		if err != nil {
			return c, err
		}
		if container, err = storage.Remove[*types.TestResultContainer](l.entities, current.UUID); err != nil {
			return c, err
		}
		return next, nil
	}); err != nil {
		return err
	}

	return l.traceWrite(ctx, "write container", container.UUID, func() error {
		l.mu.RLock()
		defer l.mu.RUnlock()
		err := l.writer.WriteContainer(container)
		metrics.RecordWrite(metrics.EntityContainer, types.StatusNone, err)
		return err
	})
}

// Fixtures

// StartBeforeFixture adds fixture to the befores of the current container and
// makes it the current fixture of the flow
func (l *Lifecycle) StartBeforeFixture(ctx context.Context, fixture *types.FixtureResult) error {
	return l.startFixture(ctx, fixture, true)
}

// StartAfterFixture adds fixture to the afters of the current container and
// makes it the current fixture of the flow
func (l *Lifecycle) StartAfterFixture(ctx context.Context, fixture *types.FixtureResult) error {
	return l.startFixture(ctx, fixture, false)
}

func (l *Lifecycle) startFixture(ctx context.Context, fixture *types.FixtureResult, before bool) error {
	if fixture == nil {
		return types.NewArgumentError("fixture")
	}

	var container *types.TestResultContainer
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		next, err := c.WithFixtureContext(fixture)
		if err != nil {
			return c, err
		}
		if container, err = next.CurrentContainer(); err != nil {
			return c, err
		}
		if err := l.checkTracked(container.UUID); err != nil {
			return c, err
		}
		if err := l.checkAdvance(&fixture.ExecutableItem, types.StageRunning); err != nil {
			return c, err
		}
		return next, nil
	}); err != nil {
		return err
	}

	l.mutate(func() {
		fixture.Stage = types.StageRunning
		fixture.Start = l.timestamp()
		if before {
			container.Befores = append(container.Befores, fixture)
		} else {
			container.Afters = append(container.Afters, fixture)
		}
	})
	metrics.RecordLifecycleEvent(metrics.EntityFixture, metrics.EventStarted)
	l.log.Debug("Started fixture", "name", fixture.Name, "before", before, "container", container.UUID)
	return nil
}

// UpdateFixture applies fn to the current fixture
func (l *Lifecycle) UpdateFixture(ctx context.Context, fn func(*types.FixtureResult)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	c := l.flows.Current(ctx)
	fixture, err := c.CurrentFixture()
	if err != nil {
		return err
	}
	if err := l.checkOwnerTracked(c); err != nil {
		return err
	}
	l.mutate(func() { fn(fixture) })
	return nil
}

// StopFixture finishes the current fixture and clears it from the flow
func (l *Lifecycle) StopFixture(ctx context.Context) error {
	var fixture *types.FixtureResult
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		current, err := c.CurrentFixture()
		if err != nil {
			return c, err
		}
		if err := l.checkOwnerTracked(c); err != nil {
			return c, err
		}
		if err := l.checkAdvance(&current.ExecutableItem, types.StageFinished); err != nil {
			return c, err
		}
		fixture = current
		return c.WithNoFixtureContext(), nil
	}); err != nil {
		return err
	}

	l.mutate(func() {
		fixture.Stage = types.StageFinished
		fixture.Stop = l.timestamp()
	})
	metrics.RecordLifecycleEvent(metrics.EntityFixture, metrics.EventStopped)
	l.log.Debug("Stopped fixture", "name", fixture.Name, "status", fixture.Status)
	return nil
}

// Test cases

// ScheduleTestCase registers test, makes it the current test of the flow and
// lists it as a child of the current container, if any
func (l *Lifecycle) ScheduleTestCase(ctx context.Context, test *types.TestResult) error {
	if test == nil {
		return types.NewArgumentError("test")
	}
	if test.UUID == "" {
		test.UUID = uuid.New().String()
	}

	var container *types.TestResultContainer
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		next, err := c.WithTestContext(test)
		if err != nil {
			return c, err
		}
		if err := l.checkAdvance(&test.ExecutableItem, types.StageScheduled); err != nil {
			return c, err
		}
		if c.HasContainer() {
			container, _ = c.CurrentContainer()
			if err := l.checkTracked(container.UUID); err != nil {
				return c, err
			}
		}
		if err := l.entities.Put(test.UUID, test); err != nil {
			return c, err
		}
		return next, nil
	}); err != nil {
		return err
	}

	l.mutate(func() {
		test.Stage = types.StageScheduled
		if container != nil && !container.HasChild(test.UUID) {
			container.Children = append(container.Children, test.UUID)
		}
	})
	metrics.RecordLifecycleEvent(metrics.EntityTest, metrics.EventScheduled)
	l.log.Debug("Scheduled test", "uuid", test.UUID, "name", test.Name)
	return nil
}

// StartTestCase schedules test unless it is already tracked and starts it
func (l *Lifecycle) StartTestCase(ctx context.Context, test *types.TestResult) error {
	if test == nil {
		return types.NewArgumentError("test")
	}

	if test.UUID == "" || !l.entities.Contains(test.UUID) {
		if err := l.ScheduleTestCase(ctx, test); err != nil {
			return err
		}
	} else if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		if current, err := c.CurrentTest(); err == nil && current == test {
			return c, nil
		}
		return c.WithTestContext(test)
	}); err != nil {
		return err
	}

	return l.StartScheduledTestCase(ctx)
}

// StartScheduledTestCase moves the current test to the running stage
func (l *Lifecycle) StartScheduledTestCase(ctx context.Context) error {
	var test *types.TestResult
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		current, err := c.CurrentTest()
		if err != nil {
			return c, err
		}
		if err := l.checkTracked(current.UUID); err != nil {
			return c, err
		}
		if err := l.checkAdvance(&current.ExecutableItem, types.StageRunning); err != nil {
			return c, err
		}
		test = current
		return c.WithNoStepContext(), nil
	}); err != nil {
		return err
	}

	l.mutate(func() {
		test.Stage = types.StageRunning
		test.Start = l.timestamp()
	})
	metrics.RecordLifecycleEvent(metrics.EntityTest, metrics.EventStarted)
	l.log.Debug("Started test", "uuid", test.UUID, "name", test.Name)
	return nil
}

func (l *Lifecycle) currentTest(ctx context.Context) (*types.TestResult, error) {
	test, err := l.flows.Current(ctx).CurrentTest()
	if err != nil {
		return nil, err
	}
	if err := l.checkTracked(test.UUID); err != nil {
		return nil, err
	}
	return test, nil
}

// UpdateTestCase applies fn to the current test
func (l *Lifecycle) UpdateTestCase(ctx context.Context, fn func(*types.TestResult)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	test, err := l.currentTest(ctx)
	if err != nil {
		return err
	}
	l.mutate(func() { fn(test) })
	return nil
}

// StopTestCase finishes the current test. The test stays current so that
// after fixtures can still run; WriteTestCase clears it.
func (l *Lifecycle) StopTestCase(ctx context.Context) error {
	test, err := l.currentTest(ctx)
	if err != nil {
		return err
	}
	return l.stopTest(test)
}

func (l *Lifecycle) stopTest(test *types.TestResult) error {
	var err error
	l.mutate(func() {
		if !test.Stage.CanAdvanceTo(types.StageFinished) {
			err = types.NewInvalidStateError(fmt.Sprintf("cannot move %q from stage %q to %q", test.Name, test.Stage, types.StageFinished))
			return
		}
		test.Stage = types.StageFinished
		test.Stop = l.timestamp()
	})
	if err != nil {
		return err
	}
	metrics.RecordLifecycleEvent(metrics.EntityTest, metrics.EventStopped)
	l.log.Debug("Stopped test", "uuid", test.UUID, "status", test.Status)
	return nil
}

// WriteTestCase clears the test, fixture and step context of the flow, stops
// tracking the test and hands it to the writer
func (l *Lifecycle) WriteTestCase(ctx context.Context) error {
	var test *types.TestResult
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		current, err := c.CurrentTest()
		if err != nil {
			return c, err
		}
		if test, err = storage.Remove[*types.TestResult](l.entities, current.UUID); err != nil {
			return c, err
		}
		return c.WithNoTestContext(), nil
	}); err != nil {
		return err
	}

	l.mutate(func() { l.resolveLinks(test.Links) })

	return l.traceWrite(ctx, "write test case", test.UUID, func() error {
		l.mu.RLock()
		defer l.mu.RUnlock()
		err := l.writer.WriteTest(test)
		metrics.RecordWrite(metrics.EntityTest, test.Status, err)
		return err
	})
}

// resolveLinks fills in the url of links that only carry a name, using the
// first configured template that mentions the link type, e.g.
// https://tracker.example.com/{issue}
func (l *Lifecycle) resolveLinks(links []types.Link) {
	for i := range links {
		link := &links[i]
		if link.URL != "" || link.Type == "" {
			continue
		}
		placeholder := "{" + link.Type + "}"
		for _, template := range l.cfg.Links {
			if strings.Contains(template, placeholder) {
				link.URL = strings.ReplaceAll(template, placeholder, link.Name)
				break
			}
		}
	}
}

// Steps

// StartStep adds step to the innermost step, test or fixture of the flow and
// makes it the current step
func (l *Lifecycle) StartStep(ctx context.Context, step *types.StepResult) error {
	if step == nil {
		return types.NewArgumentError("step")
	}

	var parent *types.ExecutableItem
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		next, err := c.WithStep(step)
		if err != nil {
			return c, err
		}
		if parent, err = c.CurrentStepContainer(); err != nil {
			return c, err
		}
		if err := l.checkOwnerTracked(c); err != nil {
			return c, err
		}
		if err := l.checkAdvance(&step.ExecutableItem, types.StageRunning); err != nil {
			return c, err
		}
		return next, nil
	}); err != nil {
		return err
	}

	l.mutate(func() {
		step.Stage = types.StageRunning
		step.Start = l.timestamp()
		parent.Steps = append(parent.Steps, step)
	})
	metrics.RecordLifecycleEvent(metrics.EntityStep, metrics.EventStarted)
	l.log.Debug("Started step", "name", step.Name, "parent", parent.Name)
	return nil
}

// UpdateStep applies fn to the current step
func (l *Lifecycle) UpdateStep(ctx context.Context, fn func(*types.StepResult)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	c := l.flows.Current(ctx)
	step, err := c.CurrentStep()
	if err != nil {
		return err
	}
	if err := l.checkOwnerTracked(c); err != nil {
		return err
	}
	l.mutate(func() { fn(step) })
	return nil
}

// StopStep finishes the current step and pops it
func (l *Lifecycle) StopStep(ctx context.Context) error {
	var step *types.StepResult
	if _, err := l.flows.Update(ctx, func(c execctx.Context) (execctx.Context, error) {
		current, err := c.CurrentStep()
		if err != nil {
			return c, err
		}
		if err := l.checkOwnerTracked(c); err != nil {
			return c, err
		}
		if err := l.checkAdvance(&current.ExecutableItem, types.StageFinished); err != nil {
			return c, err
		}
		step = current
		return c.WithNoLastStep()
	}); err != nil {
		return err
	}

	l.mutate(func() {
		step.Stage = types.StageFinished
		step.Stop = l.timestamp()
	})
	metrics.RecordLifecycleEvent(metrics.EntityStep, metrics.EventStopped)
	l.log.Debug("Stopped step", "name", step.Name, "status", step.Status)
	return nil
}

// Operations by id, for frameworks that report results from outside the flow
// that started them

// UpdateTestCaseByID applies fn to the tracked test with the given uuid
func (l *Lifecycle) UpdateTestCaseByID(id string, fn func(*types.TestResult)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	test, err := storage.Get[*types.TestResult](l.entities, id)
	if err != nil {
		return err
	}
	l.mutate(func() { fn(test) })
	return nil
}

// StopTestCaseByID finishes the tracked test with the given uuid
func (l *Lifecycle) StopTestCaseByID(id string) error {
	test, err := storage.Get[*types.TestResult](l.entities, id)
	if err != nil {
		return err
	}
	return l.stopTest(test)
}

// UpdateTestContainerByID applies fn to the tracked container with the given uuid
func (l *Lifecycle) UpdateTestContainerByID(id string, fn func(*types.TestResultContainer)) error {
	if fn == nil {
		return types.NewArgumentError("update")
	}
	container, err := storage.Get[*types.TestResultContainer](l.entities, id)
	if err != nil {
		return err
	}
	l.mutate(func() { fn(container) })
	return nil
}

// StopTestContainerByID records the stop time of the tracked container with the given uuid
func (l *Lifecycle) StopTestContainerByID(id string) error {
	container, err := storage.Get[*types.TestResultContainer](l.entities, id)
	if err != nil {
		return err
	}
	l.stopContainer(container)
	return nil
}

// Flows and snapshots

// Context returns a snapshot of the execution context of the flow ctx belongs to
func (l *Lifecycle) Context(ctx context.Context) execctx.Context {
	return l.flows.Current(ctx)
}

// RestoreContext rebinds the flow ctx belongs to to a captured snapshot
func (l *Lifecycle) RestoreContext(ctx context.Context, c execctx.Context) {
	l.flows.Restore(ctx, c)
	l.log.Debug("Restored context", "context", c.String())
}

// RunInContext runs action in a new flow seeded with c and returns the
// snapshot the flow ends with
func (l *Lifecycle) RunInContext(ctx context.Context, c execctx.Context, action func(ctx context.Context) error) (execctx.Context, error) {
	if action == nil {
		return c, types.NewArgumentError("action")
	}
	return l.flows.RunInContext(ctx, c, action)
}

// Fork starts a flow that inherits the current snapshot of the flow ctx
// belongs to. Changes made in either flow are invisible to the other.
func (l *Lifecycle) Fork(ctx context.Context) context.Context {
	return l.flows.Fork(ctx)
}

// Flow returns the slot of the flow ctx belongs to so that it can be joined
// later with InFlow, e.g. from a framework event handler
func (l *Lifecycle) Flow(ctx context.Context) *flow.Slot {
	return l.flows.Slot(ctx)
}

// InFlow runs action as part of the flow held by slot
func (l *Lifecycle) InFlow(ctx context.Context, slot *flow.Slot, action func(ctx context.Context) error) error {
	if slot == nil {
		return types.NewArgumentError("slot")
	}
	if action == nil {
		return types.NewArgumentError("action")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return action(l.flows.Attach(ctx, slot))
}

// CleanupResultDirectory removes previous results from the writer's output
func (l *Lifecycle) CleanupResultDirectory(ctx context.Context) error {
	return l.traceWrite(ctx, "cleanup results", "", func() error {
		if err := l.writer.Cleanup(); err != nil {
			metrics.RecordErrorDetails("cleanup", err)
			return err
		}
		l.log.Info("Cleaned results directory", "directory", l.cfg.Directory)
		return nil
	})
}

func (l *Lifecycle) traceWrite(ctx context.Context, name string, id string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := l.tracer.Start(ctx, name)
	defer span.End()
	if id != "" {
		span.SetAttributes(attribute.String("uuid", id))
	}

	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.log.Error("Write failed", "op", name, "uuid", id, "err", err)
		return err
	}
	return nil
}
