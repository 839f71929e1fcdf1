package bliterr

import "testing"

func TestFatal(t *testing.T) {
	cases := []struct {
		err   *Error
		fatal bool
	}{
		{VersionMismatch(1, 2), true},
		{ProtocolViolation("unexpected %s", "FOO"), true},
		{PathViolation("../etc/shadow", "root escape"), true},
		{FrameTooLarge(1<<30, 1<<20), true},
		{IOTimeout("read frame"), true},
		{DeltaMismatch("big.bin", 3), false},
		{Cancelled("user abort"), true},
	}
	for _, c := range cases {
		if got := c.err.Fatal(); got != c.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", c.err.Kind, got, c.fatal)
		}
	}
}

func TestErrorMessageIncludesPath(t *testing.T) {
	err := PathViolation("../etc/shadow", "root escape")
	const want = `PathViolation: root escape (path="../etc/shadow")`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
