package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/internal/fanout"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testAssets = fstest.MapFS{
	"assets/index.html": &fstest.MapFile{
		Data: []byte("<html><head><title>{{.Title}}</title></head><body></body></html>"),
	},
}

// newTestServer wires a Server against a config file in a temp dir and
// returns it with its collaborators.
func newTestServer(t *testing.T) (*Server, *store.Store, *fanout.Hub, *config.File) {
	t.Helper()

	file := config.NewFile(filepath.Join(t.TempDir(), "config.json"))
	st := store.New()
	hub := fanout.New(testLogger())
	t.Cleanup(hub.Close)

	srv := New(st, hub, file, config.DefaultPort, testAssets, "", testLogger())
	return srv, st, hub, file
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAddPinWritesThrough(t *testing.T) {
	srv, st, _, file := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/pins/17", addPinRequest{Pull: pin.PullUp, DebounceLow: 3, DebounceHigh: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("add pin: got status %d, body %s", rec.Code, rec.Body.String())
	}

	if _, ok := st.Get(17); !ok {
		t.Error("pin 17 not present in store after add")
	}

	cfg, err := file.Load()
	if err != nil {
		t.Fatalf("load config after add: %v", err)
	}
	pc, ok := cfg.FindPin(17)
	if !ok {
		t.Fatal("pin 17 not persisted to config file")
	}
	if pc.Pull != pin.PullUp || pc.DebounceLow != 3 || pc.DebounceHigh != 5 {
		t.Errorf("persisted config mismatch: %+v", pc)
	}
}

func TestAddPinDefaultsAndReservedWarning(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	h := srv.Handler()

	// no body at all: defaults apply
	req := httptest.NewRequest(http.MethodPost, "/api/pins/4", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add with empty body: got %d, body %s", rec.Code, rec.Body.String())
	}

	// pin 2 carries the I2C bus: monitoring is allowed but flagged
	rec = doJSON(t, h, http.MethodPost, "/api/pins/2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("add reserved pin: got %d", rec.Code)
	}
	var resp mutationResponse
	decodeInto(t, rec, &resp)
	if resp.Warning == "" {
		t.Error("expected a reserved-pin warning for pin 2")
	}
}

func TestAddPinConflict(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	h := srv.Handler()

	if rec := doJSON(t, h, http.MethodPost, "/api/pins/5", nil); rec.Code != http.StatusOK {
		t.Fatalf("first add: got %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/pins/5", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate add: got %d, want %d", rec.Code, http.StatusConflict)
	}
	var ae apiError
	decodeInto(t, rec, &ae)
	if ae.Kind != kindConflict {
		t.Errorf("error kind = %q, want %q", ae.Kind, kindConflict)
	}
}

func TestAddPinValidation(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	h := srv.Handler()

	cases := []struct {
		name string
		path string
		body any
	}{
		{"non-numeric pin", "/api/pins/abc", nil},
		{"pin out of range", "/api/pins/28", nil},
		{"negative pin", "/api/pins/-1", nil},
		{"bad pull", "/api/pins/5", addPinRequest{Pull: "sideways"}},
		{"threshold too large", "/api/pins/5", addPinRequest{DebounceLow: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}

func TestRemovePin(t *testing.T) {
	srv, st, _, file := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/9", nil)

	rec := doJSON(t, h, http.MethodDelete, "/api/pins/9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: got %d", rec.Code)
	}
	if _, ok := st.Get(9); ok {
		t.Error("pin 9 still in store after remove")
	}
	cfg, err := file.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, ok := cfg.FindPin(9); ok {
		t.Error("pin 9 still in config file after remove")
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/pins/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("remove of unmonitored pin: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestClearPins(t *testing.T) {
	srv, st, _, file := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/4", nil)
	doJSON(t, h, http.MethodPost, "/api/pins/5", nil)

	rec := doJSON(t, h, http.MethodDelete, "/api/pins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: got %d", rec.Code)
	}
	if st.Len() != 0 {
		t.Errorf("store has %d pins after clear, want 0", st.Len())
	}
	cfg, err := file.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Pins) != 0 {
		t.Errorf("config file has %d pins after clear, want 0", len(cfg.Pins))
	}
}

func TestListPins(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/21", nil)

	rec := doJSON(t, h, http.MethodGet, "/api/pins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var resp listResponse
	decodeInto(t, rec, &resp)
	if len(resp.Pins) != 1 || resp.Pins[0].Pin != 21 {
		t.Errorf("unexpected pin list: %+v", resp.Pins)
	}
	if resp.Reserved[2] == "" {
		t.Error("reserved table missing pin 2")
	}
	if resp.Port != config.DefaultPort {
		t.Errorf("port = %d, want %d", resp.Port, config.DefaultPort)
	}
}

func TestPinState(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/12", nil)

	// warm the pin up so it reports a stable level
	now := time.Now()
	for i := 0; i < pin.WindowSize; i++ {
		st.Feed(12, pin.High, now)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/pins/12/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: got %d", rec.Code)
	}
	var status store.Status
	decodeInto(t, rec, &status)
	if status.Pin != 12 {
		t.Errorf("pin = %d, want 12", status.Pin)
	}
	if status.StableLevel != pin.High {
		t.Errorf("stable level = %q, want %q", status.StableLevel, pin.High)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/pins/13/state", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("state of unmonitored pin: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestSetPullResetsState(t *testing.T) {
	srv, st, _, file := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/7", nil)
	now := time.Now()
	for i := 0; i < pin.WindowSize; i++ {
		st.Feed(7, pin.High, now)
	}

	rec := doJSON(t, h, http.MethodPut, "/api/pins/7/pull", setPullRequest{Mode: pin.PullDown})
	if rec.Code != http.StatusOK {
		t.Fatalf("set pull: got %d, body %s", rec.Code, rec.Body.String())
	}

	status, _ := st.Get(7)
	if status.Pull != pin.PullDown {
		t.Errorf("pull = %q, want %q", status.Pull, pin.PullDown)
	}
	if status.StableLevel != pin.Unknown {
		t.Errorf("stable level after reconfigure = %q, want %q", status.StableLevel, pin.Unknown)
	}

	cfg, err := file.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if pc, _ := cfg.FindPin(7); pc.Pull != pin.PullDown {
		t.Errorf("persisted pull = %q, want %q", pc.Pull, pin.PullDown)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/pins/7/pull", setPullRequest{Mode: "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad pull mode: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSetDebounce(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/6", nil)

	low, high := 2, 4
	rec := doJSON(t, h, http.MethodPut, "/api/pins/6/debounce", setDebounceRequest{Low: &low, High: &high})
	if rec.Code != http.StatusOK {
		t.Fatalf("set debounce: got %d, body %s", rec.Code, rec.Body.String())
	}
	status, _ := st.Get(6)
	if status.DebounceLow != 2 || status.DebounceHigh != 4 {
		t.Errorf("debounce = %d/%d, want 2/4", status.DebounceLow, status.DebounceHigh)
	}

	// missing fields rejected
	rec = doJSON(t, h, http.MethodPut, "/api/pins/6/debounce", setDebounceRequest{Low: &low})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("partial debounce body: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	bad := pin.WindowSize + 1
	rec = doJSON(t, h, http.MethodPut, "/api/pins/6/debounce", setDebounceRequest{Low: &bad, High: &high})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized threshold: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/pins/6/debounce", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove debounce: got %d", rec.Code)
	}
	status, _ = st.Get(6)
	if status.DebounceLow != 0 || status.DebounceHigh != 0 {
		t.Errorf("debounce after removal = %d/%d, want 0/0", status.DebounceLow, status.DebounceHigh)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/pins/11/debounce", setDebounceRequest{Low: &low, High: &high})
	if rec.Code != http.StatusNotFound {
		t.Errorf("debounce on unmonitored pin: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestSetPortFlagsRestart(t *testing.T) {
	srv, st, _, file := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPut, "/api/port", setPortRequest{Port: 9000})
	if rec.Code != http.StatusOK {
		t.Fatalf("set port: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp setPortResponse
	decodeInto(t, rec, &resp)
	if !resp.RestartRequired {
		t.Error("expected restart_required after port change")
	}
	if !st.RestartRequired() {
		t.Error("store restart flag not set")
	}

	cfg, err := file.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("persisted port = %d, want 9000", cfg.Port)
	}

	// setting it back to the running port clears the flag
	rec = doJSON(t, h, http.MethodPut, "/api/port", setPortRequest{Port: config.DefaultPort})
	decodeInto(t, rec, &resp)
	if resp.RestartRequired {
		t.Error("restart_required should clear when port matches the running one")
	}

	rec = doJSON(t, h, http.MethodPut, "/api/port", setPortRequest{Port: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("port 0: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatus(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/pins/20", nil)
	st.Warn("something odd happened")

	rec := doJSON(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp statusResponse
	decodeInto(t, rec, &resp)
	if resp.Port != config.DefaultPort {
		t.Errorf("port = %d, want %d", resp.Port, config.DefaultPort)
	}
	if len(resp.Pins) != 1 {
		t.Errorf("pins = %d, want 1", len(resp.Pins))
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("warnings = %d, want 1", len(resp.Warnings))
	}
}

func TestDashboardTitle(t *testing.T) {
	st := store.New()
	hub := fanout.New(testLogger())
	defer hub.Close()
	file := config.NewFile(filepath.Join(t.TempDir(), "config.json"))

	srv := New(st, hub, file, config.DefaultPort, testAssets, "Greenhouse <Pins>", testLogger())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Greenhouse &lt;Pins&gt;") {
		t.Errorf("title not escaped and substituted: %s", body)
	}
	if strings.Contains(body, titlePlaceholder) {
		t.Error("placeholder left in rendered page")
	}
}

func TestSSEStreamsTransitions(t *testing.T) {
	srv, _, hub, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("connect SSE: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read opening comment: %v", err)
	}
	if !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, want connected comment", line)
	}

	// subscriber registered before the handler's first write, so the
	// publish below is guaranteed to reach it
	ev := pin.Event{Pin: 17, Level: pin.High, Timestamp: time.Now().UTC()}
	hub.Publish(ev)

	var eventLine, dataLine string
	deadline := time.After(5 * time.Second)
	done := make(chan error, 1)
	go func() {
		for {
			l, err := reader.ReadString('\n')
			if err != nil {
				done <- err
				return
			}
			l = strings.TrimRight(l, "\n")
			if strings.HasPrefix(l, "event:") {
				eventLine = l
			}
			if strings.HasPrefix(l, "data:") {
				dataLine = l
				done <- nil
				return
			}
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
	case <-deadline:
		t.Fatal("timed out waiting for transition event")
	}

	if eventLine != "event: transition" {
		t.Errorf("event line = %q", eventLine)
	}
	var got pin.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &got); err != nil {
		t.Fatalf("decode event data %q: %v", dataLine, err)
	}
	if got.Pin != 17 || got.Level != pin.High {
		t.Errorf("event = %+v, want pin 17 high", got)
	}
}

func TestStartReportsBindConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv, _, _, _ := newTestServer(t)
	srv.port = port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err == nil {
		t.Fatal("expected bind error on occupied port")
	}
}
