package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts replays the golden CLI scripts under testdata/script,
// each in its own scratch working directory.
func TestScripts(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "jjcore")
	build := exec.Command("go", "build", "-o", bin, ".")
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build jjcore: %v\n%s", err, out)
	}

	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["jjcore"] = script.Program(bin, func(cmd *exec.Cmd) error {
		return cmd.Process.Signal(os.Interrupt)
	}, 5*time.Second)

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + t.TempDir(),
		"JJCORE_USER_NAME=script",
		"JJCORE_USER_EMAIL=script@example.com",
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/script/*.txt")
}
