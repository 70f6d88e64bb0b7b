package ownership

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"xdao.co/libreg/internal/testutil/testlog"
	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
)

func signer(t *testing.T, alg string, b byte) keys.Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	s, err := keys.NewSigner(alg, seed)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func mustSign(t *testing.T, cmd Command, s keys.Signer) Signed {
	t.Helper()
	signed, err := Sign(cmd, s, keys.HashSHA256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return signed
}

func TestBindOneShot(t *testing.T) {
	testlog.Start(t)
	r, err := NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	owner := signer(t, keys.AlgEd25519, 1)
	if err := r.Bind("app1", owner.OwnerKey()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := r.Bind("app1", signer(t, keys.AlgEd25519, 2).OwnerKey()); !errors.Is(err, msglib.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if got, ok := r.Owner("app1"); !ok || got != owner.OwnerKey() {
		t.Fatalf("owner changed: %q", got)
	}
	if err := r.Bind(msglib.AdminApp, owner.OwnerKey()); !errors.Is(err, msglib.ErrInvalidArgument) {
		t.Fatalf("binding the admin scope should be rejected, got %v", err)
	}
	if err := r.Bind("app2", "ed25519:short"); !errors.Is(err, msglib.ErrInvalidArgument) {
		t.Fatalf("bad key should be rejected, got %v", err)
	}
}

func TestAuthorizeSequence(t *testing.T) {
	testlog.Start(t)
	owner := signer(t, keys.AlgDilithium3, 3)
	r, _ := NewRegistry("")
	_ = r.Bind("app1", owner.OwnerKey())

	lib := msglib.MustLibraryID("lib")
	cmd := Command{Op: msglib.OpSetReceive, App: "app1", EID: 30101, Library: lib, Nonce: 1}
	got, err := r.Authorize(mustSign(t, cmd, owner))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got != cmd {
		t.Fatalf("decoded command differs: %+v", got)
	}
	r.Consume("app1", 1)

	// Replay of the consumed nonce.
	if _, err := r.Authorize(mustSign(t, cmd, owner)); !errors.Is(err, msglib.ErrUnauthorized) || msglib.RuleID(err) != "LIBREG-AUTH-003" {
		t.Fatalf("replay should be unauthorized, got %v", err)
	}
	// Skipping ahead is rejected too.
	cmd.Nonce = 3
	if _, err := r.Authorize(mustSign(t, cmd, owner)); !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("out-of-order nonce should be unauthorized, got %v", err)
	}
	if r.NextNonce("app1") != 2 {
		t.Fatalf("NextNonce = %d", r.NextNonce("app1"))
	}
}

func TestAuthorizeRejectsWrongSigner(t *testing.T) {
	testlog.Start(t)
	r, _ := NewRegistry("")
	_ = r.Bind("app1", signer(t, keys.AlgEd25519, 1).OwnerKey())

	cmd := Command{Op: msglib.OpClearSend, App: "app1", EID: 1, Nonce: 1}
	_, err := r.Authorize(mustSign(t, cmd, signer(t, keys.AlgEd25519, 9)))
	if !errors.Is(err, msglib.ErrUnauthorized) || msglib.RuleID(err) != "LIBREG-AUTH-002" {
		t.Fatalf("expected signature rejection, got %v", err)
	}

	cmd.App = "unbound"
	_, err = r.Authorize(mustSign(t, cmd, signer(t, keys.AlgEd25519, 1)))
	if msglib.RuleID(err) != "LIBREG-AUTH-001" {
		t.Fatalf("expected unbound scope rejection, got %v", err)
	}
}

func TestAuthorizeRejectsTamperedCommand(t *testing.T) {
	testlog.Start(t)
	owner := signer(t, keys.AlgEd25519, 1)
	r, _ := NewRegistry("")
	_ = r.Bind("app1", owner.OwnerKey())

	signed := mustSign(t, Command{Op: msglib.OpSetSend, App: "app1", EID: 1, Library: msglib.MustLibraryID("a"), Nonce: 1}, owner)
	other := mustSign(t, Command{Op: msglib.OpSetSend, App: "app1", EID: 1, Library: msglib.MustLibraryID("b"), Nonce: 1}, owner)
	signed.Command = other.Command
	if _, err := r.Authorize(signed); !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("swapped command bytes should be unauthorized, got %v", err)
	}
}

func TestAdminScope(t *testing.T) {
	testlog.Start(t)
	admin := signer(t, keys.AlgEd25519, 5)
	r, err := NewRegistry(admin.OwnerKey())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	app := signer(t, keys.AlgEd25519, 6)

	bind := Command{Op: msglib.OpBind, App: "app1", Owner: app.OwnerKey(), Nonce: 1}
	if _, err := r.Authorize(mustSign(t, bind, app)); !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("bind signed by a non-admin key should fail, got %v", err)
	}
	got, err := r.Authorize(mustSign(t, bind, admin))
	if err != nil {
		t.Fatalf("admin bind: %v", err)
	}
	if got.Scope() != msglib.AdminApp {
		t.Fatalf("bind should be sequenced under the admin scope")
	}
	if len(r.Bindings()) != 0 {
		t.Fatalf("admin scope must not be listed as a binding")
	}
}

func TestSignedEnvelopeRoundTrip(t *testing.T) {
	testlog.Start(t)
	owner := signer(t, keys.AlgEd25519, 1)
	signed := mustSign(t, Command{Op: msglib.OpRegister, Library: msglib.MustLibraryID("x"), Capability: msglib.ReceiveOnly, Nonce: 1}, owner)
	b, err := MarshalSigned(signed)
	if err != nil {
		t.Fatalf("MarshalSigned: %v", err)
	}
	back, err := UnmarshalSigned(b)
	if err != nil {
		t.Fatalf("UnmarshalSigned: %v", err)
	}
	cmd, err := back.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cmd.Capability != msglib.ReceiveOnly || cmd.Library != msglib.MustLibraryID("x") {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestCommandValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"unknown op", Command{Op: "send.frobnicate", App: "a"}, false},
		{"register without library", Command{Op: msglib.OpRegister}, false},
		{"bind without owner", Command{Op: msglib.OpBind, App: "a"}, false},
		{"selection on admin scope", Command{Op: msglib.OpSetSend, App: msglib.AdminApp}, false},
		{"selection without app", Command{Op: msglib.OpClearReceive}, false},
		{"advance", Command{Op: msglib.OpAdvance, Checkpoint: 5}, true},
		{"clear", Command{Op: msglib.OpClearReceive, App: "a", EID: 2}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
