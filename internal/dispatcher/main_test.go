package dispatcher

import (
	"testing"

	"go.uber.org/goleak"
)

// Every Run owns a subprocess and a stdout-draining goroutine; both
// must be released on all exit paths, including timeouts.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
