package sweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"ioam-bench/internal/config"
	"ioam-bench/internal/database"
	"ioam-bench/internal/device"
	"ioam-bench/internal/executor"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/matrix"
	"ioam-bench/internal/remote"
	"ioam-bench/internal/stats"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDevice struct {
	mu          sync.Mutex
	calls       []string
	routes      []device.RouteSpec
	prepareErr  error
	routeFailAt int
}

func (f *fakeDevice) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDevice) Prepare(context.Context) error {
	f.record("prepare")
	return f.prepareErr
}

func (f *fakeDevice) ApplyRoute(_ context.Context, spec device.RouteSpec) error {
	f.record("route " + spec.Mode.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, spec)
	if f.routeFailAt > 0 && len(f.routes) == f.routeFailAt {
		return errors.New("exit status 2")
	}
	return nil
}

func (f *fakeDevice) EnableTunnel(context.Context) { f.record("tunnel up") }
func (f *fakeDevice) DisableTunnel()               { f.record("tunnel down") }

func (f *fakeDevice) Cleanup(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.record("cleanup")
	return nil
}

func (f *fakeDevice) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	cfg    *config.SweepConfig
	dev    *fakeDevice
	runner *executor.Fake
	dials  int
}

func newHarness(t *testing.T, cfg *config.SweepConfig) *harness {
	t.Helper()
	return &harness{cfg: cfg, dev: &fakeDevice{}, runner: executor.NewFake()}
}

func (h *harness) driver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(h.cfg, Options{
		Dial: func(context.Context) (Session, error) {
			h.dials++
			return remote.NewSession(h.cfg.Remote, h.runner), nil
		},
		Device: h.dev,
		Euid:   func() int { return 0 },
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d
}

func manifestFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "sweep_*.json.gz"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestDryRunDoesNothing(t *testing.T) {
	cfg := testConfig(t, config.KindMode, "INLINE", "ENCAP")
	cfg.Sweep.DryRun = true
	cfg.Report.Metrics = filepath.Join(t.TempDir(), "sweep.prom")

	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stdout) })

	dev := &fakeDevice{}
	d, err := NewDriver(cfg, Options{
		Dial: func(context.Context) (Session, error) {
			t.Fatalf("dry run must not open a session")
			return nil, nil
		},
		Device: dev,
		Euid:   func() int { return 0 },
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	manifest, err := d.Run(context.Background())
	if err != nil || manifest != nil {
		t.Fatalf("expected clean dry run, got %v %v", manifest, err)
	}
	if calls := dev.Calls(); len(calls) != 0 {
		t.Fatalf("dry run issued device commands: %v", calls)
	}
	if files := manifestFiles(t, cfg.Report.Manifest); len(files) != 0 {
		t.Fatalf("dry run wrote files: %v", files)
	}
	if _, err := os.Stat(cfg.Report.Metrics); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote a metrics file")
	}
	if got := strings.Count(buf.String(), "sweep_msg=\"Planned point\""); got != d.Plan().Len() {
		t.Fatalf("expected %d planned lines, got %d:\n%s", d.Plan().Len(), got, buf.String())
	}
}

func TestRunPacketSweep(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "FLOW")
	cfg.Report.Metrics = filepath.Join(t.TempDir(), "sweep.prom")
	h := newHarness(t, cfg)

	manifest, err := h.driver(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var lines []string
	for _, l := range h.runner.Lines() {
		lines = append(lines, strings.SplitN(l, " ", 2)[0])
	}
	want := []string{"python3", "mv", "tee", "python3", "mv", "tee"}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("session commands mismatch (-want +got):\n%s", diff)
	}
	if got := h.runner.Lines()[1]; got != "mv stats.txt decap_FLOW_9_1_stats.txt" {
		t.Fatalf("unexpected move %s", got)
	}

	wantDev := []string{"prepare", "tunnel up", "cleanup", "tunnel down"}
	if diff := cmp.Diff(wantDev, h.dev.Calls()); diff != "" {
		t.Fatalf("device calls mismatch (-want +got):\n%s", diff)
	}
	if !h.runner.Closed() {
		t.Fatalf("session not closed")
	}

	if got := manifest.Counts()[database.PointDone]; got != 2 {
		t.Fatalf("expected 2 points done, got %d", got)
	}
	files := manifestFiles(t, cfg.Report.Manifest)
	if len(files) != 1 {
		t.Fatalf("expected one manifest, got %v", files)
	}
	back, err := database.ReadManifest(files[0])
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if back.SweepName != "decap" || len(back.Points) != 2 || back.Error != "" {
		t.Fatalf("unexpected manifest %+v", back)
	}

	prom, err := os.ReadFile(cfg.Report.Metrics)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(prom), `ioam_bench_sweep_points_total{status="done",sweep="decap"} 2`) {
		t.Fatalf("unexpected metrics:\n%s", prom)
	}
}

func TestRunModeSweepAppliesRoutes(t *testing.T) {
	cfg := testConfig(t, config.KindMode, "INLINE", "ENCAP_TUNSRC")
	h := newHarness(t, cfg)

	if _, err := h.driver(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"prepare", "route INLINE", "route INLINE", "route ENCAP_TUNSRC", "route ENCAP_TUNSRC", "cleanup"}
	if diff := cmp.Diff(want, h.dev.Calls()); diff != "" {
		t.Fatalf("device calls mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(h.runner.Lines()[0], "insertionDEX=True,encapMode=False") {
		t.Fatalf("unexpected first run %s", h.runner.Lines()[0])
	}
	if !strings.Contains(h.runner.Lines()[1], "decap_Mode.INLINE_9_1_stats.txt") {
		t.Fatalf("unexpected move %s", h.runner.Lines()[1])
	}
}

func TestRunFailsFast(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		setup    func(*harness)
		wantCode int
		wantRuns int
		dialed   bool
	}{
		{
			name:     "device prepare",
			kind:     config.KindPacket,
			setup:    func(h *harness) { h.dev.prepareErr = errors.New("exit status 2") },
			wantCode: ExitConfiguration,
		},
		{
			name:     "route install",
			kind:     config.KindExtFlag,
			setup:    func(h *harness) { h.dev.routeFailAt = 2 },
			wantCode: ExitConfiguration,
			wantRuns: 1,
			dialed:   true,
		},
		{
			name:     "session run",
			kind:     config.KindPacket,
			setup:    func(h *harness) { h.runner.FailOn("nbMTU=0", 1) },
			wantCode: ExitSession,
			wantRuns: 2,
			dialed:   true,
		},
		{
			name:     "persist",
			kind:     config.KindPacket,
			setup:    func(h *harness) { h.runner.FailOn("mv stats.txt", 1) },
			wantCode: ExitPersistence,
			wantRuns: 1,
			dialed:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.kind, "0x00", "0x80")
			h := newHarness(t, cfg)
			tt.setup(h)

			manifest, err := h.driver(t).Run(context.Background())
			if got := ExitCode(err); got != tt.wantCode {
				t.Fatalf("expected exit %d, got %d (%v)", tt.wantCode, got, err)
			}

			runs := 0
			for _, l := range h.runner.Lines() {
				if strings.HasPrefix(l, "python3") {
					runs++
				}
			}
			if runs != tt.wantRuns {
				t.Fatalf("expected %d runs before abort, got %d", tt.wantRuns, runs)
			}

			calls := h.dev.Calls()
			if prepared := tt.dialed; prepared && !slices.Contains(calls, "cleanup") {
				t.Fatalf("device not released: %v", calls)
			}
			if tt.dialed && !h.runner.Closed() {
				t.Fatalf("session not released")
			}
			if manifest == nil || manifest.Error == "" {
				t.Fatalf("expected manifest with error, got %+v", manifest)
			}
			if len(manifestFiles(t, cfg.Report.Manifest)) != 1 {
				t.Fatalf("manifest not written on failure")
			}
		})
	}
}

func TestRunReleasesDeviceWhenDialFails(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "FLOW")
	dev := &fakeDevice{}
	d, err := NewDriver(cfg, Options{
		Dial:   func(context.Context) (Session, error) { return nil, errors.New("connection refused") },
		Device: dev,
		Euid:   func() int { return 0 },
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	_, err = d.Run(context.Background())
	if ExitCode(err) != ExitSession {
		t.Fatalf("expected session exit code, got %v", err)
	}
	want := []string{"prepare", "tunnel up", "cleanup", "tunnel down"}
	if diff := cmp.Diff(want, dev.Calls()); diff != "" {
		t.Fatalf("device calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRunReleasesDeviceWhenPrepareFails(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "FLOW")
	dev := &fakeDevice{prepareErr: errors.New("RTNETLINK answers: No such device")}
	d, err := NewDriver(cfg, Options{
		Dial: func(context.Context) (Session, error) {
			t.Fatalf("session dialed after failed prepare")
			return nil, nil
		},
		Device: dev,
		Euid:   func() int { return 0 },
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	_, err = d.Run(context.Background())
	if ExitCode(err) != ExitConfiguration {
		t.Fatalf("expected configuration exit code, got %v", err)
	}
	want := []string{"prepare", "cleanup"}
	if diff := cmp.Diff(want, dev.Calls()); diff != "" {
		t.Fatalf("device calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDryRunRequiresRoot(t *testing.T) {
	cfg := testConfig(t, config.KindMode, "INLINE")
	cfg.Sweep.DryRun = true
	dev := &fakeDevice{}
	d, err := NewDriver(cfg, Options{Device: dev, Euid: func() int { return 1000 }})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, err := d.Run(context.Background()); ExitCode(err) != ExitPrecondition {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if len(dev.Calls()) != 0 {
		t.Fatalf("device touched: %v", dev.Calls())
	}
}

func TestRunRequiresRoot(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "FLOW")
	h := newHarness(t, cfg)
	d, err := NewDriver(cfg, Options{Device: h.dev, Euid: func() int { return 1000 }})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, err := d.Run(context.Background()); ExitCode(err) != ExitPrecondition {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if len(h.dev.Calls()) != 0 {
		t.Fatalf("device touched without privilege: %v", h.dev.Calls())
	}
}

func TestRunResumeSkipsExistingTrialFiles(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "A", "B")
	cfg.Sweep.Resume = true
	h := newHarness(t, cfg)
	h.runner.FailOn("test -e decap_B_", 1)

	manifest, err := h.driver(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	counts := manifest.Counts()
	if counts[database.PointSkipped] != 2 || counts[database.PointDone] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}
	for _, l := range h.runner.Lines() {
		if strings.Contains(l, "ioamPacketName=A,") {
			t.Fatalf("existing trial file was re-run: %s", l)
		}
	}
}

func TestRunInterrupted(t *testing.T) {
	cfg := testConfig(t, config.KindPacket, "FLOW")
	h := newHarness(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.driver(t).Run(ctx)
	if !IsInterrupted(err) {
		t.Fatalf("expected interruption, got %v", err)
	}
	calls := h.dev.Calls()
	if calls[len(calls)-2] != "cleanup" || !h.runner.Closed() {
		t.Fatalf("resources not released after interrupt: %v", calls)
	}
}

// cancellingSession cancels the sweep while the traffic run is in flight.
type cancellingSession struct {
	*remote.Session
	cancel context.CancelFunc
}

func (s *cancellingSession) Run(ctx context.Context, _ int, _ remote.ProfileParams) (*executor.Result, error) {
	s.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunInterruptedDuringTraffic(t *testing.T) {
	cfg := testConfig(t, config.KindMode, "INLINE", "ENCAP")
	h := newHarness(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewDriver(cfg, Options{
		Dial: func(context.Context) (Session, error) {
			return &cancellingSession{Session: remote.NewSession(cfg.Remote, h.runner), cancel: cancel}, nil
		},
		Device: h.dev,
		Euid:   func() int { return 0 },
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	manifest, err := d.Run(ctx)
	if !IsInterrupted(err) {
		t.Fatalf("expected interruption, got %v", err)
	}
	if got := ExitCode(err); got != ExitUnknown {
		t.Fatalf("expected exit code %d, got %d", ExitUnknown, got)
	}
	if len(manifest.Points) != 1 || manifest.Points[0].Status != database.PointFailed {
		t.Fatalf("expected one failed point, got %+v", manifest.Points)
	}
	if !slices.Contains(h.dev.Calls(), "cleanup") || !h.runner.Closed() {
		t.Fatalf("resources not released after interrupt: %v", h.dev.Calls())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&PreconditionError{Reason: "root"}, ExitPrecondition},
		{fmt.Errorf("wrapped: %w", &SessionError{Err: errors.New("x")}), ExitSession},
		{&PersistenceError{Err: errors.New("x")}, ExitPersistence},
		{&ConfigurationError{Err: errors.New("x")}, ExitConfiguration},
		{&stats.ParseError{Err: stats.ErrEmpty}, ExitParse},
		{&extract.IOError{Path: "/x", Err: os.ErrNotExist}, ExitParse},
		{&extract.PatternError{File: "x", Reason: "no pair"}, ExitPattern},
		{&matrix.PlacementError{File: "x", Reason: "collision"}, ExitPattern},
		{&SessionError{Point: "p", Err: context.Canceled}, ExitUnknown},
		{&ConfigurationError{Point: "p", Err: fmt.Errorf("ip route: %w", context.Canceled)}, ExitUnknown},
		{&SessionError{Err: fmt.Errorf("traffic run exceeded 1m0s: %w", context.DeadlineExceeded)}, ExitSession},
		{errors.New("other"), ExitUnknown},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
