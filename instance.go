package allure

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-allure/execctx"
	"github.com/ethereum-optimism/infra/op-allure/flow"
	"github.com/ethereum-optimism/infra/op-allure/types"
)

// Reporter is the surface framework adapters program against.
// *Lifecycle implements it; tests can substitute their own.
type Reporter interface {
	StartTestContainer(ctx context.Context, container *types.TestResultContainer) error
	UpdateTestContainer(ctx context.Context, fn func(*types.TestResultContainer)) error
	StopTestContainer(ctx context.Context) error
	WriteTestContainer(ctx context.Context) error

	StartBeforeFixture(ctx context.Context, fixture *types.FixtureResult) error
	StartAfterFixture(ctx context.Context, fixture *types.FixtureResult) error
	UpdateFixture(ctx context.Context, fn func(*types.FixtureResult)) error
	StopFixture(ctx context.Context) error

	ScheduleTestCase(ctx context.Context, test *types.TestResult) error
	StartTestCase(ctx context.Context, test *types.TestResult) error
	StartScheduledTestCase(ctx context.Context) error
	UpdateTestCase(ctx context.Context, fn func(*types.TestResult)) error
	StopTestCase(ctx context.Context) error
	WriteTestCase(ctx context.Context) error

	StartStep(ctx context.Context, step *types.StepResult) error
	UpdateStep(ctx context.Context, fn func(*types.StepResult)) error
	StopStep(ctx context.Context) error

	AddAttachment(ctx context.Context, name string, mediaType string, content []byte, extension string) error
	AddAttachmentFile(ctx context.Context, name string, path string) error
	AddScreenDiff(ctx context.Context, expected, actual, diff []byte) error

	UpdateTestCaseByID(id string, fn func(*types.TestResult)) error
	StopTestCaseByID(id string) error
	UpdateTestContainerByID(id string, fn func(*types.TestResultContainer)) error
	StopTestContainerByID(id string) error

	Context(ctx context.Context) execctx.Context
	RestoreContext(ctx context.Context, c execctx.Context)
	RunInContext(ctx context.Context, c execctx.Context, action func(ctx context.Context) error) (execctx.Context, error)
	Fork(ctx context.Context) context.Context
	Flow(ctx context.Context) *flow.Slot
	InFlow(ctx context.Context, slot *flow.Slot, action func(ctx context.Context) error) error

	CleanupResultDirectory(ctx context.Context) error
	StatusFor(err error) types.Status
}

var _ Reporter = (*Lifecycle)(nil)

var (
	instanceMu sync.Mutex
	instance   Reporter
)

// Instance returns the process-wide reporter, creating a Lifecycle from
// LoadConfig on first use. A failed creation is not cached.
func Instance() (Reporter, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return instance, nil
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	lifecycle, err := New(cfg)
	if err != nil {
		return nil, err
	}
	instance = lifecycle
	return instance, nil
}

// SetInstance replaces the process-wide reporter and returns a function
// restoring the previous one
func SetInstance(r Reporter) (restore func()) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	previous := instance
	instance = r
	return func() {
		instanceMu.Lock()
		defer instanceMu.Unlock()
		instance = previous
	}
}
