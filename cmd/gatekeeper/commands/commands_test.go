package commands

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/f7las/gatekeeper/internal/config"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String()
}

// prepareWorkspace points HOME at a temp dir and runs init there.
func prepareWorkspace(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	configPathFlag = ""

	captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}
