package host

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProc(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestInitializeHostConfigFromProc(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, "version", "Linux version 6.1.0-ioam (builder@lab) #1 SMP\n")
	writeProc(t, root, "cpuinfo", "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Xeon(R) Gold 6230\nphysical id\t: 0\n\nprocessor\t: 1\nphysical id\t: 1\n")
	writeProc(t, root, "sys/net/ipv6/ioam6_id", "2\n")
	writeProc(t, root, "sys/net/ipv6/conf/ens6f1/ioam6_enabled", "1\n")
	writeProc(t, root, "sys/net/ipv6/conf/ens6f1/ioam6_id", "21\n")

	old := procRoot
	procRoot = root
	defer func() { procRoot = old }()

	hc, err := initializeHostConfig([]string{"ens6f1", "ens6f0"})
	if err != nil {
		t.Fatalf("initializeHostConfig: %v", err)
	}
	if hc.KernelVersion != "6.1.0-ioam" {
		t.Fatalf("unexpected kernel %q", hc.KernelVersion)
	}
	if hc.CPUVendor != "GenuineIntel" || hc.NumSockets != 2 {
		t.Fatalf("unexpected cpu info %+v", hc)
	}
	if hc.IOAM.NodeID != "2" {
		t.Fatalf("unexpected node id %q", hc.IOAM.NodeID)
	}
	if got := hc.IOAM.Interfaces["ens6f1"]; got.Enabled != "1" || got.ID != "21" {
		t.Fatalf("unexpected ens6f1 sysctls %+v", got)
	}
	if got := hc.IOAM.Interfaces["ens6f0"]; got.Enabled != "" {
		t.Fatalf("expected missing sysctls to be empty, got %+v", got)
	}
}

func TestInitializeHostConfigWithoutProc(t *testing.T) {
	old := procRoot
	procRoot = filepath.Join(t.TempDir(), "absent")
	defer func() { procRoot = old }()

	hc, err := initializeHostConfig(nil)
	if err != nil {
		t.Fatalf("initializeHostConfig: %v", err)
	}
	if hc.KernelVersion != "unknown" || hc.CPUModel != "unknown" || hc.NumSockets != 1 {
		t.Fatalf("expected defaults, got %+v", hc)
	}
}
