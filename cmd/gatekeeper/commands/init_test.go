package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/f7las/gatekeeper/internal/config"
)

func TestInit_WritesConfigAndSamples(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPathFlag = ""

	output := captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})

	if _, err := os.Stat(config.ConfigPath()); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	for _, path := range []string{
		cfg.ContractsPath(),
		filepath.Join(cfg.PoliciesDir(), "00-baseline.yaml"),
		cfg.FixturesPath(),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	if !strings.Contains(output, "gatekeeper initialized!") {
		t.Fatalf("unexpected output: %s", output)
	}

	again := captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("second runInit: %v", err)
		}
	})
	if !strings.Contains(again, "Config already exists") {
		t.Fatalf("expected existing config notice, got: %s", again)
	}
	if strings.Contains(again, "wrote") {
		t.Fatalf("expected existing samples to be kept, got: %s", again)
	}
}
