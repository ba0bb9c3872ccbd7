// Package exitcodes defines the exit codes used by the op-allure command.
package exitcodes

// Exit code constants used by op-allure:
//
// * Success (0): every summarised test passed or was skipped
// * TestFailure (1): at least one test failed or broke
// * RuntimeErr (2): the results could not be read or cleaned
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
