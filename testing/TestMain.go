// Package testing prepares the process environment for tests that boot the
// binaries. Import it for side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("RBACADMIN_TEST_MODE", "1")
		for key, value := range map[string]string{
			"TOKEN_SECRET": "test-token-secret",
			"CSRF_SECRET":  "test-csrf-secret",
			"LOG_FORMAT":   "json",
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
