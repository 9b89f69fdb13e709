package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeOnce  sync.Once
	testModeValue bool
)

// InTestMode reports whether binaries should skip connecting to Postgres and Redis.
// The flag is read once per process.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeValue = parseTestMode(os.Getenv(testModeEnv))
	})
	return testModeValue
}

func parseTestMode(raw string) bool {
	enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && enabled
}
