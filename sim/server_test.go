package sim

import (
	"math"
	"testing"
	"time"
)

type countingMetrics struct {
	accepted, rejected, snapshots int
}

func (m *countingMetrics) IncAccepted()       { m.accepted++ }
func (m *countingMetrics) IncRejected()       { m.rejected++ }
func (m *countingMetrics) AddSnapshots(n int) { m.snapshots += n }

func TestServer_ConnectAssignsIDsAndSpawns(t *testing.T) {
	clock := NewManualClock(epoch)
	srv := NewServer(ServerConfig{}, clock)
	c0 := NewClient(ClientConfig{}, clock)
	c1 := NewClient(ClientConfig{}, clock)

	if id := srv.Connect(c0); id != 0 {
		t.Fatalf("first id = %d", id)
	}
	if id := srv.Connect(c1); id != 1 {
		t.Fatalf("second id = %d", id)
	}
	ents := srv.Entities()
	if len(ents) != 2 || ents[0].X != 4 || ents[1].X != 6 {
		t.Fatalf("entities = %+v, want spawns 4 and 6", ents)
	}
	if id, ok := c1.EntityID(); !ok || id != 1 {
		t.Fatalf("client EntityID() = %d, %v", id, ok)
	}
}

func TestServer_SpawnTableWraps(t *testing.T) {
	clock := NewManualClock(epoch)
	srv := NewServer(ServerConfig{}, clock)
	for i := 0; i < 3; i++ {
		srv.Connect(NewClient(ClientConfig{}, clock))
	}
	if x := srv.Entities()[2].X; x != 4 {
		t.Fatalf("third spawn = %v, want 4", x)
	}
}

func TestServer_PositionIsSpawnPlusSumOfInputs(t *testing.T) {
	clock := NewManualClock(epoch)
	srv := NewServer(ServerConfig{}, clock)
	srv.Connect(NewClient(ClientConfig{}, clock))

	presses := []float64{0.02, -0.01, 0.025, 0.003, -0.025, 0.0125}
	var sum float64
	for i, p := range presses {
		srv.Inbox().Send(0, Input{PressTime: p, Seq: uint64(i + 1), EntityID: 0})
		sum += p
		if i%2 == 1 {
			srv.Update()
		}
	}
	srv.Update()

	if got, want := srv.Entities()[0].X, 4+DefaultEntitySpeed*sum; !approx(got, want) {
		t.Fatalf("X = %v, want %v", got, want)
	}
	if got := srv.LastProcessedInput(0); got != uint64(len(presses)) {
		t.Fatalf("LastProcessedInput = %d, want %d", got, len(presses))
	}
}

func TestServer_ValidateInputBoundary(t *testing.T) {
	clock := NewManualClock(epoch)
	srv := NewServer(ServerConfig{}, clock)
	srv.Connect(NewClient(ClientConfig{}, clock))

	cases := []struct {
		name string
		in   Input
		want bool
	}{
		{"exact bound", Input{PressTime: 1.0 / 40}, true},
		{"exact negative bound", Input{PressTime: -1.0 / 40}, true},
		{"zero", Input{PressTime: 0}, true},
		{"just above", Input{PressTime: math.Nextafter(1.0/40, 1)}, false},
		{"just below negative", Input{PressTime: math.Nextafter(-1.0/40, -1)}, false},
		{"whole tick", Input{PressTime: 0.1}, false},
		{"nan", Input{PressTime: math.NaN()}, false},
		{"inf", Input{PressTime: math.Inf(1)}, false},
		{"unknown entity", Input{PressTime: 0.01, EntityID: 5}, false},
		{"negative entity", Input{PressTime: 0.01, EntityID: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := srv.ValidateInput(tc.in); got != tc.want {
				t.Fatalf("ValidateInput(%+v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestServer_RejectedInputsLeaveStateUntouched(t *testing.T) {
	clock := NewManualClock(epoch)
	m := &countingMetrics{}
	srv := NewServer(ServerConfig{Metrics: m}, clock)
	srv.Connect(NewClient(ClientConfig{}, clock))

	srv.Inbox().Send(0, Input{PressTime: 0.01, Seq: 1})
	srv.Inbox().Send(0, Input{PressTime: 0.5, Seq: 2})
	srv.Inbox().Send(0, Input{PressTime: math.NaN(), Seq: 3})
	srv.Update()

	if x := srv.Entities()[0].X; !approx(x, 4.02) {
		t.Fatalf("X = %v, want 4.02", x)
	}
	if got := srv.LastProcessedInput(0); got != 1 {
		t.Fatalf("LastProcessedInput = %d, want 1", got)
	}
	if m.accepted != 1 || m.rejected != 2 || m.snapshots != 1 {
		t.Fatalf("metrics = %+v", *m)
	}
}

func TestServer_BroadcastUsesEachClientLag(t *testing.T) {
	clock := NewManualClock(epoch)
	srv := NewServer(ServerConfig{}, clock)
	fast := NewClient(ClientConfig{}, clock)
	slow := NewClient(ClientConfig{Lag: 100 * time.Millisecond}, clock)
	srv.Connect(fast)
	srv.Connect(slow)

	srv.Update()

	a, ok := fast.inbox.Receive()
	if !ok {
		t.Fatalf("zero-lag client got nothing")
	}
	if _, ok := slow.inbox.Receive(); ok {
		t.Fatalf("lagged client received snapshot early")
	}
	clock.Advance(100 * time.Millisecond)
	b, ok := slow.inbox.Receive()
	if !ok {
		t.Fatalf("lagged client got nothing after lag")
	}
	if a.Tick != 1 || b.Tick != 1 || len(a.Entities) != 2 || &a.Entities[0] != &b.Entities[0] {
		t.Fatalf("clients did not receive the same snapshot: %+v / %+v", a, b)
	}
}

func TestServer_SetTickRate(t *testing.T) {
	srv := NewServer(ServerConfig{}, NewManualClock(epoch))
	if err := srv.SetTickRate(0); err != ErrInvalidTickRate {
		t.Fatalf("SetTickRate(0) err = %v", err)
	}
	if srv.TickRate() != DefaultServerTickRate {
		t.Fatalf("invalid rate changed TickRate to %d", srv.TickRate())
	}
	if err := srv.SetTickRate(20); err != nil {
		t.Fatalf("SetTickRate(20): %v", err)
	}
	if srv.TickInterval() != 50*time.Millisecond {
		t.Fatalf("TickInterval() = %v", srv.TickInterval())
	}
}
