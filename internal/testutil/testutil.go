// Package testutil gates heavy tests behind a -long flag so the default
// test run stays fast.
package testutil

import (
	"flag"
	"testing"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// Iterations picks a loop count depending on whether -long is set.
func Iterations(short, long int) int {
	if *RunLong {
		return long
	}
	return short
}
