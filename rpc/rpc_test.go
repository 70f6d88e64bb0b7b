package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/internal/testutil/testlog"
	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/storage/memory"
)

var (
	libA = msglib.MustLibraryID("lib-a")
	libB = msglib.MustLibraryID("lib-b")
)

func signer(t *testing.T, b byte) keys.Signer {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	s, err := keys.NewSigner(keys.AlgEd25519, seed)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

type fixture struct {
	ep     *endpoint.Endpoint
	client *Client
	admin  keys.Signer
	owner  keys.Signer
}

func (f *fixture) exec(t *testing.T, cmd ownership.Command, s keys.Signer) (endpoint.Result, error) {
	t.Helper()
	signed, err := ownership.Sign(cmd, s, keys.HashSHA256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return f.client.Execute(context.Background(), signed)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{admin: signer(t, 1), owner: signer(t, 2)}
	ep, err := endpoint.Open(endpoint.Options{Store: memory.New(), AdminKey: f.admin.OwnerKey()})
	if err != nil {
		t.Fatalf("endpoint.Open: %v", err)
	}
	f.ep = ep

	lis := bufconn.Listen(1024 * 1024)
	srv := NewGRPCServer(ep)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	client, err := Dial("bufnet", DialOptions{Extra: []grpc.DialOption{
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	f.client = client

	setup := []ownership.Command{
		{Op: msglib.OpRegister, Library: libA, Capability: msglib.SendAndReceive, Nonce: 1},
		{Op: msglib.OpRegister, Library: libB, Capability: msglib.ReceiveOnly, Nonce: 2},
		{Op: msglib.OpBind, App: "app1", Owner: f.owner.OwnerKey(), Nonce: 3},
		{Op: msglib.OpAdvance, Checkpoint: 10, Nonce: 4},
	}
	for _, cmd := range setup {
		if _, err := f.exec(t, cmd, f.admin); err != nil {
			t.Fatalf("setup %s: %v", cmd.Op, err)
		}
	}
	return f
}

func TestExecuteAndAcceptOverGRPC(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.exec(t, ownership.Command{Op: msglib.OpSetReceive, App: "app1", EID: 1, Library: libA, Nonce: 1}, f.owner)
	if err != nil || !res.Changed || res.Block == "" {
		t.Fatalf("pin libA: %+v %v", res, err)
	}
	if _, err := f.exec(t, ownership.Command{Op: msglib.OpSetReceive, App: "app1", EID: 1, Library: libB, Expiry: 100, Nonce: 2}, f.owner); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, tc := range []struct {
		lib  msglib.LibraryID
		at   uint64
		want bool
	}{
		{libA, 50, true},
		{libA, 150, false},
		{libB, 150, true},
	} {
		got, err := f.client.AcceptAt(ctx, "app1", 1, tc.lib, tc.at)
		if err != nil {
			t.Fatalf("AcceptAt: %v", err)
		}
		if got != tc.want {
			t.Fatalf("AcceptAt(%s, %d) = %v, want %v", tc.lib, tc.at, got, tc.want)
		}
	}
	if ok, err := f.client.Accept(ctx, "app1", 1, libA); err != nil || !ok {
		t.Fatalf("Accept(libA) at current checkpoint = %v, %v", ok, err)
	}

	v, err := f.client.Describe(ctx, "app1", 1)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	want, _ := f.ep.Describe("app1", 1)
	if v != want {
		t.Fatalf("Describe over gRPC = %+v, want %+v", v, want)
	}

	libs, err := f.client.Libraries(ctx)
	if err != nil || len(libs) != 2 {
		t.Fatalf("Libraries = %+v, %v", libs, err)
	}
	head, err := f.client.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != f.ep.Head() || head.Seq != 6 || head.Checkpoint != 10 {
		t.Fatalf("Head = %+v", head)
	}
}

func TestErrorsKeepKindAndRule(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec(t, ownership.Command{Op: msglib.OpSetSend, App: "app1", EID: 1, Library: libB, Nonce: 1}, f.owner)
	if !errors.Is(err, msglib.ErrInvalidCapability) || msglib.RuleID(err) != "LIBREG-CAP-101" {
		t.Fatalf("expected InvalidCapability/LIBREG-CAP-101, got %v", err)
	}

	_, err = f.exec(t, ownership.Command{Op: msglib.OpSetSend, App: "app1", EID: 1, Library: libA, Nonce: 1}, f.admin)
	if !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}

	_, err = f.exec(t, ownership.Command{Op: msglib.OpRegister, Library: libA, Capability: msglib.SendOnly, Nonce: 5}, f.admin)
	if !errors.Is(err, msglib.ErrAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}

	if _, err := f.client.AcceptAt(ctx, "app1", 1, libA, 3); !errors.Is(err, checkpoint.ErrRegression) {
		t.Fatalf("expected ErrRegression, got %v", err)
	}
}

func TestWatchStreamsCommittedChanges(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan WatchEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.client.Watch(ctx, func(ev WatchEvent) error {
			events <- ev
			return errors.New("stop")
		})
	}()

	// The stream subscribes asynchronously; keep committing until it sees one.
	deadline := time.After(5 * time.Second)
	eid := msglib.EID(100)
	nonce := uint64(1)
	for {
		if _, err := f.exec(t, ownership.Command{Op: msglib.OpSetSend, App: "app1", EID: eid, Library: libA, Nonce: nonce}, f.owner); err != nil {
			t.Fatalf("SetSend: %v", err)
		}
		select {
		case ev := <-events:
			if ev.Entry.Event.Type != msglib.OpSetSend || ev.Entry.Event.To != libA || ev.Block == "" {
				t.Fatalf("unexpected watch event %+v", ev)
			}
			if err := <-done; err == nil || err.Error() != "stop" {
				t.Fatalf("Watch returned %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("no watch event received")
		case <-time.After(20 * time.Millisecond):
			eid++
			nonce++
		}
	}
}
