package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/executor"

	"github.com/google/go-cmp/cmp"
)

type fakeLinks struct {
	up, down []string
	err      error
}

func (f *fakeLinks) SetUp(name string) error {
	f.up = append(f.up, name)
	return f.err
}

func (f *fakeLinks) SetDown(name string) error {
	f.down = append(f.down, name)
	return f.err
}

func newTestChannel(runner executor.Runner, links LinkController) *Channel {
	return NewChannel(config.DefaultConfig().Device, runner, links)
}

func TestRouteAddArgs(t *testing.T) {
	c := newTestChannel(executor.NewFake(), &fakeLinks{})
	pair := axis.Pair{Baseline: 99, Instrumented: 1}

	tests := []struct {
		mode Mode
		want string
	}{
		{ModeInline, "-6 r a cd00::/64 encap ioam6 freq 1/100 mode inline dex ns 123 trace-type 0x800000 ext-flags 0x00 via db02::1 dev ens6f1"},
		{ModeEncap, "-6 r a cd00::/64 encap ioam6 freq 1/100 mode encap tundst db02::1 dex ns 123 trace-type 0x800000 ext-flags 0x00 via db02::1 dev ens6f1"},
		{ModeEncapTunSrc, "-6 r a cd00::/64 encap ioam6 freq 1/100 mode encap tunsrc db02::2 tundst db02::1 dex ns 123 trace-type 0x800000 ext-flags 0x00 via db02::1 dev ens6f1"},
	}
	for _, tt := range tests {
		got := strings.Join(c.Route(tt.mode, pair, "", "").AddArgs(), " ")
		if got != tt.want {
			t.Fatalf("%s:\nexpected %s\ngot      %s", tt.mode, tt.want, got)
		}
	}

	spec := c.Route(ModeInline, axis.Pair{Baseline: 0, Instrumented: 1}, "0x2000", "0xC0")
	got := strings.Join(spec.AddArgs(), " ")
	if !strings.Contains(got, "freq 1/1 ") || !strings.Contains(got, "trace-type 0x2000 ext-flags 0xC0") {
		t.Fatalf("overrides not applied: %s", got)
	}
}

func TestPrepare(t *testing.T) {
	fake := executor.NewFake().FailOn("schema del", 2)
	c := newTestChannel(fake, &fakeLinks{})

	if err := c.Prepare(context.Background()); err != nil {
		t.Fatalf("schema failure must not be fatal: %v", err)
	}
	want := []string{
		"sudo /usr/bin/ip ioam schema del 21",
		"sudo /usr/bin/ip ioam namespace add 123 data 0x1234 wide 0x12345678",
		"sudo /usr/bin/ip -6 r d cd00::/64",
		"sudo /usr/bin/ip -6 r a cd00::/64 via db02::1 dev ens6f1",
	}
	if diff := cmp.Diff(want, fake.Lines()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareFailsOnPlainRoute(t *testing.T) {
	fake := executor.NewFake().FailOn("r a cd00::/64 via", 2)
	err := newTestChannel(fake, &fakeLinks{}).Prepare(context.Background())
	var exitErr *executor.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected wrapped ExitError, got %v", err)
	}
}

func TestApplyRoute(t *testing.T) {
	fake := executor.NewFake().FailOn("r d", 2)
	c := newTestChannel(fake, &fakeLinks{})

	spec := c.Route(ModeEncap, axis.Pair{Baseline: 3, Instrumented: 1}, "", "")
	if err := c.ApplyRoute(context.Background(), spec); err != nil {
		t.Fatalf("route delete failure must not be fatal: %v", err)
	}
	lines := fake.Lines()
	if len(lines) != 2 || !strings.Contains(lines[1], "freq 1/4 mode encap tundst db02::1") {
		t.Fatalf("unexpected commands %v", lines)
	}

	fake.FailOn("encap ioam6", 2)
	if err := c.ApplyRoute(context.Background(), spec); err == nil {
		t.Fatalf("expected route add failure to surface")
	}
}

func TestApplyRouteValidates(t *testing.T) {
	fake := executor.NewFake()
	c := newTestChannel(fake, &fakeLinks{})
	if err := c.ApplyRoute(context.Background(), c.Route(ModeInline, axis.Pair{}, "", "")); err == nil {
		t.Fatalf("expected 0/0 to be rejected")
	}
	if len(fake.Lines()) != 0 {
		t.Fatalf("no command may run for an invalid route")
	}
}

func TestTunnelFailuresAreLogged(t *testing.T) {
	fake := executor.NewFake().FailOn("modprobe", 1)
	links := &fakeLinks{err: errors.New("no such device")}
	c := newTestChannel(fake, links)

	c.EnableTunnel(context.Background())
	c.DisableTunnel()

	if diff := cmp.Diff([]string{"sudo modprobe ip6_tunnel"}, fake.Lines()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
	if len(links.up) != 1 || links.up[0] != "ip6tnl0" || len(links.down) != 1 {
		t.Fatalf("unexpected link calls up=%v down=%v", links.up, links.down)
	}
}

func TestCleanupRunsEveryStep(t *testing.T) {
	fake := executor.NewFake().FailOn("r d", 2)
	err := newTestChannel(fake, &fakeLinks{}).Cleanup(context.Background())
	if err == nil {
		t.Fatalf("expected first failure to be returned")
	}
	if got := len(fake.Lines()); got != 3 {
		t.Fatalf("expected 3 cleanup commands, got %d", got)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeInline, ModeEncap, ModeEncapTunSrc} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseMode(%s) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseMode("TUNNEL"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	if !ModeEncapTunSrc.Encapsulating() || ModeInline.Encapsulating() {
		t.Fatalf("unexpected Encapsulating result")
	}
}
