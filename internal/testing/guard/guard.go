// Package guard switches the process into test mode before any test in the
// importing package runs, so runtime side effects (listeners, brokers) are
// skipped.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("RBACADMIN_TEST_MODE") == "" {
			_ = os.Setenv("RBACADMIN_TEST_MODE", "1")
		}
	})
}
