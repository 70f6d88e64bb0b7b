package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"xdao.co/libreg/defaults"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/internal/testutil/testlog"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/storage/memory"
)

var (
	libA   = msglib.MustLibraryID("lib-a")
	libB   = msglib.MustLibraryID("lib-b")
	libDef = msglib.MustLibraryID("lib-default")
)

func newServer(t *testing.T) (*Server, *endpoint.Endpoint) {
	t.Helper()
	ep, err := endpoint.Open(endpoint.Options{Store: memory.New()})
	if err != nil {
		t.Fatalf("endpoint.Open: %v", err)
	}
	for _, r := range []struct {
		id msglib.LibraryID
		c  msglib.Capability
	}{
		{libA, msglib.SendAndReceive},
		{libB, msglib.ReceiveOnly},
		{libDef, msglib.SendAndReceive},
	} {
		if _, err := ep.Register(r.id, r.c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := ep.ReplaceDefaults(defaults.New(1, defaults.Pair{Send: libDef, Receive: libDef}, nil)); err != nil {
		t.Fatalf("ReplaceDefaults: %v", err)
	}
	if _, err := ep.Advance(10); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := ep.SetReceiveLibrary("app1", 1, libA, 0); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if _, err := ep.SetReceiveLibrary("app1", 1, libB, 100); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(ep, nil), ep
}

func get(t *testing.T, s *Server, path string, wantCode int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != wantCode {
		t.Fatalf("GET %s: expected %d, got %d body=%s", path, wantCode, rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t)
	body := get(t, s, "/health", http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %#v", body)
	}
}

func TestAcceptRoute(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t)

	cases := []struct {
		lib  msglib.LibraryID
		at   string
		want bool
	}{
		{libA, "50", true},
		{libA, "150", false},
		{libB, "150", true},
		{libDef, "50", false},
	}
	for _, tc := range cases {
		path := "/v1/accept?app=app1&eid=1&library=" + tc.lib.String() + "&at=" + tc.at
		body := get(t, s, path, http.StatusOK)
		if body["accepted"] != tc.want {
			t.Fatalf("%s: accepted = %v, want %v", path, body["accepted"], tc.want)
		}
	}

	// Without at, the endpoint's checkpoint (10) applies.
	body := get(t, s, "/v1/accept?app=app1&eid=1&library="+libA.String(), http.StatusOK)
	if body["accepted"] != true {
		t.Fatalf("accept at current checkpoint = %v", body["accepted"])
	}
}

func TestAcceptRouteErrors(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t)

	cases := []struct {
		path string
		rule string
	}{
		{"/v1/accept?app=app1&eid=x&library=" + libA.String(), "LIBREG-EID-001"},
		{"/v1/accept?app=app1&eid=1&library=nope", "LIBREG-ID-006"},
		{"/v1/accept?app=app1&eid=1&library=" + libA.String() + "&at=5", "LIBREG-CKP-002"},
		{"/v1/accept?app=app1&eid=1&library=" + libA.String() + "&at=-1", "LIBREG-HTTP-001"},
		{"/v1/accept?eid=1&library=" + libA.String(), "LIBREG-APP-001"},
	}
	for _, tc := range cases {
		body := get(t, s, tc.path, http.StatusBadRequest)
		e, _ := body["error"].(map[string]any)
		if e["rule"] != tc.rule || e["kind"] != string(msglib.KindInvalidArgument) {
			t.Fatalf("%s: error = %#v, want rule %s", tc.path, body["error"], tc.rule)
		}
	}
}

func TestDescribeRoute(t *testing.T) {
	testlog.Start(t)
	s, ep := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/apps/app1/paths/1", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var got endpoint.PathView
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, _ := ep.Describe("app1", 1)
	if got != want {
		t.Fatalf("path view = %+v, want %+v", got, want)
	}
	if got.Receive.State != "migrating" {
		t.Fatalf("state = %s", got.Receive.State)
	}
}

func TestLibrariesAndHead(t *testing.T) {
	testlog.Start(t)
	s, ep := newServer(t)

	body := get(t, s, "/v1/libraries", http.StatusOK)
	libs, _ := body["libraries"].([]any)
	if len(libs) != 3 {
		t.Fatalf("libraries = %#v", body["libraries"])
	}

	head := get(t, s, "/v1/journal/head", http.StatusOK)
	if head["seq"] != float64(ep.Head().Seq) || head["block"] != ep.Head().Block {
		t.Fatalf("head = %#v", head)
	}
}

func TestMetricsRoute(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t)
	get(t, s, "/health", http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
