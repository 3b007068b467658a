package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"netsync/sim"
)

func newTestManager(t *testing.T, cfg Config, clock sim.Clock) (*RoomManager, *httptest.Server) {
	t.Helper()
	rm := NewRoomManager(cfg, clock)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rm.HandleWS)
	mux.HandleFunc("/admin/config", rm.HandleAdminConfig)
	mux.HandleFunc("/metrics", rm.HandleMetrics)
	mux.HandleFunc("/render", rm.HandleRender)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		rm.Close()
	})
	return rm, ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAdminConfig_GetAndPost(t *testing.T) {
	_, ts := newTestManager(t, DefaultConfig(), sim.NewManualClock(epoch))
	base := ts.URL + "/admin/config?room=room-1"

	var cur ConfigUpdate
	if code := doJSON(t, http.MethodGet, base+"&player=player1", "", &cur); code != http.StatusOK {
		t.Fatalf("get status=%d", code)
	}
	if cur.TickRateHz == nil || *cur.TickRateHz != 50 || *cur.LagMs != 250 || *cur.Prediction || !*cur.Interpolation {
		t.Fatalf("player1 config=%+v", cur)
	}

	var res struct {
		OK     bool         `json:"ok"`
		Config ConfigUpdate `json:"config"`
	}
	if code := doJSON(t, http.MethodPost, base+"&player=player1", `{"reconciliation":true,"lagMs":80}`, &res); code != http.StatusOK {
		t.Fatalf("post status=%d", code)
	}
	if !res.OK || !*res.Config.Prediction || !*res.Config.Reconciliation || *res.Config.LagMs != 80 {
		t.Fatalf("post result=%+v", res)
	}

	var srv ConfigUpdate
	if code := doJSON(t, http.MethodPost, base, `{"tickRateHz":30}`, &res); code != http.StatusOK {
		t.Fatalf("server post status=%d", code)
	}
	if code := doJSON(t, http.MethodGet, base, "", &srv); code != http.StatusOK || *srv.TickRateHz != 30 {
		t.Fatalf("server config=%+v code=%d", srv, code)
	}
}

func TestAdminConfig_Errors(t *testing.T) {
	_, ts := newTestManager(t, DefaultConfig(), sim.NewManualClock(epoch))
	base := ts.URL + "/admin/config"

	cases := []struct {
		name, method, query, body string
		want                      int
	}{
		{"unknown player", http.MethodPost, "?player=ghost", `{}`, http.StatusNotFound},
		{"bad json", http.MethodPost, "?player=player1", `{`, http.StatusBadRequest},
		{"zero rate", http.MethodPost, "?player=player1", `{"tickRateHz":0}`, http.StatusBadRequest},
		{"server lag", http.MethodPost, "", `{"lagMs":10}`, http.StatusBadRequest},
		{"method", http.MethodDelete, "", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		if code := doJSON(t, tc.method, base+tc.query, tc.body, nil); code != tc.want {
			t.Fatalf("%s: status=%d, want %d", tc.name, code, tc.want)
		}
	}
}

func TestMetricsAndRender(t *testing.T) {
	_, ts := newTestManager(t, DefaultConfig(), sim.NewManualClock(epoch))

	var m struct {
		Room    string         `json:"room"`
		Tick    uint64         `json:"tick"`
		Metrics map[string]any `json:"metrics"`
		Acks    []AckState     `json:"acks"`
		Pending map[string]int `json:"pending"`
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/metrics", "", &m); code != http.StatusOK {
		t.Fatalf("metrics status=%d", code)
	}
	if m.Room != DefaultRoomID || len(m.Acks) != 2 || len(m.Pending) != 2 {
		t.Fatalf("metrics=%+v", m)
	}
	if _, ok := m.Metrics["inputs_rejected"]; !ok {
		t.Fatalf("metrics missing counters: %v", m.Metrics)
	}

	resp, err := http.Get(ts.URL + "/render")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Fatalf("render lines=%q", lines)
	}
	if !strings.HasPrefix(lines[0], "server") || !strings.HasPrefix(lines[1], "player1") {
		t.Fatalf("render=%q", body)
	}
	// 默认 61 列：x=4 在第 24 列，x=6 在第 36 列
	if !strings.Contains(lines[0], "|"+strings.Repeat(".", 24)+"0"+strings.Repeat(".", 11)+"1") {
		t.Fatalf("server row=%q", lines[0])
	}
}
