// Package writer persists finished results in the Allure results format.
package writer

import (
	"github.com/ethereum-optimism/infra/op-allure/types"
)

const (
	TestResultSuffix = "-result.json"
	ContainerSuffix  = "-container.json"
	AttachmentSuffix = "-attachment"
	LockFileName     = ".allure.lock"
)

// Writer persists finished entities and attachment content.
// Implementations must be safe for concurrent use by multiple flows.
type Writer interface {
	WriteTest(result *types.TestResult) error
	WriteContainer(container *types.TestResultContainer) error
	WriteBinary(name string, content []byte) error
	Cleanup() error
}

// TestResultFileName returns the file name a test result is written to
func TestResultFileName(uuid string) string {
	return uuid + TestResultSuffix
}

// ContainerFileName returns the file name a container is written to
func ContainerFileName(uuid string) string {
	return uuid + ContainerSuffix
}
