package blitconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromFileAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blitd.yaml")
	yamlContent := `
modules:
  - name: photos
    path: /srv/photos
    writable: false
  - name: incoming
    path: /srv/incoming
    writable: true
    pre_hook: "echo starting"
    post_hook: "echo done"
net_workers: 8
checksum: true
`
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(cfg.Modules))
	}
	if cfg.NetWorkers != 8 {
		t.Errorf("NetWorkers = %d, want 8 (overridden)", cfg.NetWorkers)
	}
	if !cfg.Checksum {
		t.Errorf("Checksum = false, want true (overridden)")
	}
	// BundleThreshold wasn't set in the file; must keep Default()'s value.
	if cfg.BundleThreshold != Default().BundleThreshold {
		t.Errorf("BundleThreshold = %d, want default %d", cfg.BundleThreshold, Default().BundleThreshold)
	}

	mod, ok := cfg.ModuleByName("incoming")
	if !ok {
		t.Fatal("ModuleByName(incoming) not found")
	}
	if !mod.Writable {
		t.Error("incoming module should be writable")
	}
	if mod.PreHook != "echo starting" {
		t.Errorf("PreHook = %q, want %q", mod.PreHook, "echo starting")
	}

	if _, ok := cfg.ModuleByName("nonexistent"); ok {
		t.Error("ModuleByName(nonexistent) should not be found")
	}
}

func TestFromFileRejectsModuleWithoutName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("modules:\n  - path: /srv/x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Fatal("expected error for module without a name")
	}
}

func TestRunPreHookAndPostHook(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	mod := Module{
		Name:     "m",
		Path:     dir,
		PreHook:  "touch " + marker,
		PostHook: "rm " + marker,
	}
	if err := RunPreHook(mod); err != nil {
		t.Fatalf("RunPreHook: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("marker not created by pre-hook: %v", err)
	}
	if err := RunPostHook(mod); err != nil {
		t.Fatalf("RunPostHook: %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("marker should have been removed by post-hook, err = %v", err)
	}
}

func TestRunHookEmptyIsNoop(t *testing.T) {
	if err := RunPreHook(Module{Name: "m"}); err != nil {
		t.Fatalf("empty PreHook should be a no-op, got %v", err)
	}
}
