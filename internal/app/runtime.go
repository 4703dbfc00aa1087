package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv set to "1" makes the binaries return before opening any
// connection.
const TestModeEnv = "RBACADMIN_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reports whether the binaries should skip runtime side effects.
// The environment is read on first use.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	testMode.on.Store(os.Getenv(TestModeEnv) == "1")
}
