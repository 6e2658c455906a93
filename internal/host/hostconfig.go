package host

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"ioam-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// HostConfig describes the device under test as seen from the driver.
// It is recorded in every sweep manifest.
type HostConfig struct {
	// System Information
	Hostname      string `json:"hostname"`
	OSInfo        string `json:"os_info"`
	KernelVersion string `json:"kernel_version"`

	// CPU Information
	CPUVendor    string `json:"cpu_vendor"`
	CPUModel     string `json:"cpu_model"`
	TotalThreads int    `json:"total_threads"`
	NumSockets   int    `json:"num_sockets"`

	// IOAM Information
	IOAM IOAMConfig `json:"ioam"`
}

// IOAMConfig holds the IPv6 IOAM sysctls relevant to a sweep.
type IOAMConfig struct {
	// NodeID is net.ipv6.ioam6_id, empty if the kernel lacks IOAM.
	NodeID     string            `json:"node_id"`
	Interfaces map[string]IOAMIf `json:"interfaces,omitempty"`
}

type IOAMIf struct {
	Enabled string `json:"enabled"`
	ID      string `json:"id"`
}

var (
	globalHostConfig *HostConfig
	hostConfigOnce   sync.Once

	procRoot = "/proc"
)

// GetHostConfig returns the global host configuration. It is collected on
// first call; ifaces lists the interfaces whose IOAM sysctls are recorded.
func GetHostConfig(ifaces ...string) (*HostConfig, error) {
	var err error
	hostConfigOnce.Do(func() {
		globalHostConfig, err = initializeHostConfig(ifaces)
	})
	return globalHostConfig, err
}

func initializeHostConfig(ifaces []string) (*HostConfig, error) {
	logger := logging.GetLogger()

	config := &HostConfig{}
	if err := config.initSystemInfo(); err != nil {
		return nil, fmt.Errorf("failed to initialize system info: %w", err)
	}
	config.initCPUInfo()
	config.initIOAMInfo(ifaces)

	logger.WithFields(logrus.Fields{
		"hostname":     config.Hostname,
		"kernel":       config.KernelVersion,
		"ioam_node_id": config.IOAM.NodeID,
	}).Debug("Host configuration collected")

	return config, nil
}

func (hc *HostConfig) initSystemInfo() error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	hc.Hostname = hostname
	hc.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	if data, err := os.ReadFile(filepath.Join(procRoot, "version")); err == nil {
		version := strings.Fields(string(data))
		if len(version) >= 3 {
			hc.KernelVersion = version[2]
		}
	}
	if hc.KernelVersion == "" {
		hc.KernelVersion = "unknown"
	}
	return nil
}

func (hc *HostConfig) initCPUInfo() {
	hc.TotalThreads = runtime.NumCPU()
	hc.CPUVendor = "unknown"
	hc.CPUModel = "unknown"
	hc.NumSockets = 1

	file, err := os.Open(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return
	}
	defer file.Close()

	sockets := make(map[string]bool)
	var vendor, model string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "vendor_id":
			if vendor == "" {
				vendor = value
			}
		case "model name":
			if model == "" {
				model = value
			}
		case "physical id":
			sockets[value] = true
		}
	}

	if vendor != "" {
		hc.CPUVendor = vendor
	}
	if model != "" {
		hc.CPUModel = model
	}
	if len(sockets) > 0 {
		hc.NumSockets = len(sockets)
	}
}

func (hc *HostConfig) initIOAMInfo(ifaces []string) {
	hc.IOAM.NodeID = readSysctl("net/ipv6/ioam6_id")
	if len(ifaces) == 0 {
		return
	}
	hc.IOAM.Interfaces = make(map[string]IOAMIf, len(ifaces))
	for _, name := range ifaces {
		hc.IOAM.Interfaces[name] = IOAMIf{
			Enabled: readSysctl("net/ipv6/conf/" + name + "/ioam6_enabled"),
			ID:      readSysctl("net/ipv6/conf/" + name + "/ioam6_id"),
		}
	}
}

func readSysctl(name string) string {
	data, err := os.ReadFile(filepath.Join(procRoot, "sys", name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
