package blitconfig

import (
	"os"
	"os/exec"

	"github.com/google/shlex"

	"github.com/blit-sync/blit/internal/bliterr"
)

// RunPreHook runs mod's PreHook command line, if set, before a
// session begins writing to mod's root. Grounded on teacher's doCmd
// (internal/maincmd/clientmaincmd.go), which also prefers shlex.Split
// over a hand-rolled shell-style parser for splitting a command
// string into argv.
func RunPreHook(mod Module) error {
	return runHook(mod.PreHook)
}

// RunPostHook runs mod's PostHook command line, if set, after a
// session completes successfully.
func RunPostHook(mod Module) error {
	return runHook(mod.PostHook)
}

func runHook(cmdline string) error {
	if cmdline == "" {
		return nil
	}
	args, err := shlex.Split(cmdline)
	if err != nil {
		return bliterr.IOPermanent("hook: parsing command", err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return bliterr.IOPermanent("hook: "+cmdline, err)
	}
	return nil
}
