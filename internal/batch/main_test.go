package batch

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/banshee-data/lcmerge/internal/monitoring"
)

// Every worker goroutine must have exited by the time Run returns.
func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	goleak.VerifyTestMain(m)
}
