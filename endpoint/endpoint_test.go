package endpoint

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/codec"
	"xdao.co/libreg/defaults"
	"xdao.co/libreg/internal/testutil/testlog"
	"xdao.co/libreg/journal"
	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/storage/memory"
)

var (
	libA   = msglib.MustLibraryID("lib-a")
	libB   = msglib.MustLibraryID("lib-b")
	libC   = msglib.MustLibraryID("lib-c")
	libDef = msglib.MustLibraryID("lib-default")
)

// flakyStore fails ref updates on demand.
type flakyStore struct {
	*memory.Store
	fail atomic.Bool
}

func (s *flakyStore) SetRef(name string, old, next cid.Cid) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.Store.SetRef(name, old, next)
}

func mustSigner(t *testing.T, b byte) keys.Signer {
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

func sign(t *testing.T, cmd ownership.Command, s keys.Signer) ownership.Signed {
	t.Helper()
	signed, err := ownership.Sign(cmd, s, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return signed
}

// newEndpoint opens an endpoint on store with libA (send+receive), libB
// (receive), libC (send) and libDef (default for both roles).
func newEndpoint(t *testing.T, opts Options) *Endpoint {
	t.Helper()
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	regs := []struct {
		id msglib.LibraryID
		c  msglib.Capability
	}{
		{libA, msglib.SendAndReceive},
		{libB, msglib.ReceiveOnly},
		{libC, msglib.SendOnly},
		{libDef, msglib.SendAndReceive},
	}
	for _, r := range regs {
		if _, err := e.Register(r.id, r.c); err != nil {
			t.Fatalf("Register %s: %v", r.id, err)
		}
	}
	if err := e.ReplaceDefaults(defaults.New(1, defaults.Pair{Send: libDef, Receive: libDef}, nil)); err != nil {
		t.Fatalf("ReplaceDefaults: %v", err)
	}
	return e
}

func TestMigrationScenario(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})

	if !e.Accept("app1", 1, libDef) || e.Accept("app1", 1, libA) {
		t.Fatalf("unconfigured path must accept exactly the default")
	}
	if _, err := e.Advance(10); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := e.SetReceiveLibrary("app1", 1, libA, 0); err != nil {
		t.Fatalf("pin libA: %v", err)
	}
	res, err := e.SetReceiveLibrary("app1", 1, libB, 100)
	if err != nil || !res.Changed {
		t.Fatalf("migrate to libB: %+v %v", res, err)
	}

	cases := []struct {
		lib  msglib.LibraryID
		at   checkpoint.Checkpoint
		want bool
	}{
		{libA, 50, true},
		{libA, 99, true},
		{libA, 100, false},
		{libA, 150, false},
		{libB, 50, true},
		{libB, 150, true},
		{libDef, 50, false},
	}
	for _, tc := range cases {
		got, err := e.AcceptAt("app1", 1, tc.lib, tc.at)
		if err != nil {
			t.Fatalf("AcceptAt(%s, %d): %v", tc.lib, tc.at, err)
		}
		if got != tc.want {
			t.Fatalf("AcceptAt(%s, %d) = %v, want %v", tc.lib, tc.at, got, tc.want)
		}
	}

	if _, err := e.AcceptAt("app1", 1, libA, 5); !errors.Is(err, checkpoint.ErrRegression) {
		t.Fatalf("AcceptAt behind the counter should fail with ErrRegression, got %v", err)
	}
	// The pure predicate stays total.
	if !e.IsAcceptable("app1", 1, libA, 5) {
		t.Fatalf("IsAcceptable(libA, 5) should be true")
	}

	v, err := e.Describe("app1", 1)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if v.Receive.State != "migrating" || v.Receive.Library != libB || v.Receive.Previous != libA || v.Receive.Expiry != 100 {
		t.Fatalf("unexpected receive view %+v", v.Receive)
	}
	if !v.Send.Default || v.Send.Library != libDef {
		t.Fatalf("unexpected send view %+v", v.Send)
	}
}

func TestSendRejectsReceiveOnlyLibrary(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})

	if _, err := e.SetSendLibrary("app1", 1, libA); err != nil {
		t.Fatalf("SetSendLibrary(libA): %v", err)
	}
	_, err := e.SetSendLibrary("app1", 1, libB)
	if !errors.Is(err, msglib.ErrInvalidCapability) {
		t.Fatalf("expected InvalidCapability, got %v", err)
	}
	if lib, def := e.SendLibrary("app1", 1); lib != libA || def {
		t.Fatalf("send selection changed: %s default=%v", lib, def)
	}

	if _, err := e.ClearSendLibrary("app1", 1); err != nil {
		t.Fatalf("ClearSendLibrary: %v", err)
	}
	if lib, def := e.SendLibrary("app1", 1); lib != libDef || !def {
		t.Fatalf("cleared path should use the default, got %s default=%v", lib, def)
	}
}

func TestReceiveLibraryRejectsSendOnly(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	_, err := e.SetReceiveLibrary("app1", 1, libC, 0)
	if !errors.Is(err, msglib.ErrInvalidCapability) {
		t.Fatalf("expected InvalidCapability, got %v", err)
	}
	if lib, def := e.ReceiveLibrary("app1", 1, 0); lib != libDef || !def {
		t.Fatalf("receive selection changed: %s", lib)
	}
}

func TestRegisterTwiceRejected(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	_, seq := e.Journal().Head()
	_, err := e.Register(libA, msglib.ReceiveOnly)
	if !errors.Is(err, msglib.ErrAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
	if _, after := e.Journal().Head(); after != seq {
		t.Fatalf("rejected register was journaled")
	}
	for _, entry := range e.Libraries() {
		if entry.ID == libA && entry.Capability != msglib.SendAndReceive {
			t.Fatalf("capability of libA changed to %s", entry.Capability)
		}
	}
}

func TestJournalFailureLeavesStateUnchanged(t *testing.T) {
	testlog.Start(t)
	store := &flakyStore{Store: memory.New()}
	e := newEndpoint(t, Options{Store: store})
	if _, err := e.SetReceiveLibrary("app1", 1, libA, 0); err != nil {
		t.Fatalf("pin libA: %v", err)
	}
	before, _ := e.Describe("app1", 1)
	head := e.Head()

	store.fail.Store(true)
	_, err := e.SetReceiveLibrary("app1", 1, libB, 0)
	if !msglib.IsKind(err, msglib.KindStorage) || msglib.RuleID(err) != "LIBREG-JRN-001" {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, err := e.Register(msglib.MustLibraryID("lib-new"), msglib.SendOnly); !msglib.IsKind(err, msglib.KindStorage) {
		t.Fatalf("expected storage error from register, got %v", err)
	}

	after, _ := e.Describe("app1", 1)
	if after != before {
		t.Fatalf("state changed after failed append: %+v -> %+v", before, after)
	}
	if e.Head() != head {
		t.Fatalf("head moved after failed append")
	}
	if len(e.Libraries()) != 4 {
		t.Fatalf("failed register reached the directory")
	}

	store.fail.Store(false)
	if _, err := e.SetReceiveLibrary("app1", 1, libB, 0); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
}

func TestReopenReplaysJournal(t *testing.T) {
	testlog.Start(t)
	store := memory.New()
	owner := mustSigner(t, 2)
	e := newEndpoint(t, Options{Store: store})

	if _, err := e.Bind("app1", owner.OwnerKey()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	steps := []func() (Result, error){
		func() (Result, error) { return e.Advance(10) },
		func() (Result, error) { return e.SetSendLibrary("app1", 1, libC) },
		func() (Result, error) { return e.SetReceiveLibrary("app1", 1, libA, 0) },
		func() (Result, error) { return e.SetReceiveLibrary("app1", 1, libB, 40) },
		func() (Result, error) { return e.SetReceiveLibrary("app1", 2, libA, 0) },
		func() (Result, error) { return e.ClearReceiveLibrary("app1", 2) },
		func() (Result, error) { return e.SetSendLibrary("app1", 3, libA) },
		func() (Result, error) { return e.Advance(20) },
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	cmd := ownership.Command{Op: msglib.OpSetReceiveTimeout, App: "app1", EID: 1, Library: libA, Expiry: 60, Nonce: 1}
	if _, err := e.Execute(sign(t, cmd, owner)); err != nil {
		t.Fatalf("Execute timeout: %v", err)
	}

	re, err := Open(Options{Store: store, Defaults: e.Defaults()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if re.Checkpoint() != 20 {
		t.Fatalf("checkpoint = %d, want 20", re.Checkpoint())
	}
	if re.Head() != e.Head() {
		t.Fatalf("head differs: %v vs %v", re.Head(), e.Head())
	}
	for _, eid := range []msglib.EID{1, 2, 3, 4} {
		want, _ := e.Describe("app1", eid)
		got, _ := re.Describe("app1", eid)
		if got != want {
			t.Fatalf("eid %d: replayed %+v, want %+v", eid, got, want)
		}
	}
	if len(re.Libraries()) != len(e.Libraries()) {
		t.Fatalf("directory differs after replay")
	}
	if re.NextNonce("app1") != 2 {
		t.Fatalf("nonce not restored: next = %d", re.NextNonce("app1"))
	}
	if got := re.Owners(); len(got) != 1 || got[0].Owner != owner.OwnerKey() {
		t.Fatalf("owners not restored: %+v", got)
	}
	if n, err := re.Journal().Verify(); err != nil || n != e.Head().Seq {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}

func TestExecuteSignedCommands(t *testing.T) {
	testlog.Start(t)
	admin := mustSigner(t, 1)
	owner := mustSigner(t, 2)
	stranger := mustSigner(t, 3)
	store := memory.New()

	e, err := Open(Options{Store: store, AdminKey: admin.OwnerKey()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	adminCmds := []ownership.Command{
		{Op: msglib.OpRegister, Library: libA, Capability: msglib.SendAndReceive, Nonce: 1},
		{Op: msglib.OpRegister, Library: libB, Capability: msglib.ReceiveOnly, Nonce: 2},
		{Op: msglib.OpBind, App: "app1", Owner: owner.OwnerKey(), Nonce: 3},
		{Op: msglib.OpAdvance, Checkpoint: 10, Nonce: 4},
	}
	for _, cmd := range adminCmds {
		res, err := e.Execute(sign(t, cmd, admin))
		if err != nil || !res.Changed {
			t.Fatalf("Execute %s: %+v %v", cmd.Op, res, err)
		}
	}

	// Only the administrator may register.
	_, err = e.Execute(sign(t, ownership.Command{Op: msglib.OpRegister, Library: libC, Capability: msglib.SendOnly, Nonce: 5}, owner))
	if !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("owner-signed register should be unauthorized, got %v", err)
	}

	set := ownership.Command{Op: msglib.OpSetReceive, App: "app1", EID: 7, Library: libA, Nonce: 1}
	if _, err := e.Execute(sign(t, set, stranger)); !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("stranger-signed command should be unauthorized, got %v", err)
	}
	res, err := e.Execute(sign(t, set, owner))
	if err != nil || !res.Changed || res.Op != msglib.OpSetReceive {
		t.Fatalf("owner set: %+v %v", res, err)
	}
	if _, err := e.Execute(sign(t, set, owner)); !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("replayed command should be unauthorized, got %v", err)
	}

	// A no-op does not consume the nonce.
	set.Nonce = 2
	res, err = e.Execute(sign(t, set, owner))
	if err != nil || res.Changed {
		t.Fatalf("same-library set should be a no-op: %+v %v", res, err)
	}
	if e.NextNonce("app1") != 2 {
		t.Fatalf("no-op consumed a nonce: next = %d", e.NextNonce("app1"))
	}
	// Neither does a rejected command.
	bad := ownership.Command{Op: msglib.OpSetSend, App: "app1", EID: 7, Library: libB, Nonce: 2}
	if _, err := e.Execute(sign(t, bad, owner)); !errors.Is(err, msglib.ErrInvalidCapability) {
		t.Fatalf("expected InvalidCapability, got %v", err)
	}
	migrate := ownership.Command{Op: msglib.OpSetReceive, App: "app1", EID: 7, Library: libB, Expiry: 50, Nonce: 2}
	if _, err := e.Execute(sign(t, migrate, owner)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !e.Accept("app1", 7, libA) || !e.Accept("app1", 7, libB) {
		t.Fatalf("both libraries should be acceptable during the grace window")
	}

	re, err := Open(Options{Store: store, AdminKey: admin.OwnerKey()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if re.NextNonce("app1") != 3 || re.NextNonce(msglib.AdminApp) != 5 {
		t.Fatalf("nonces after replay: app1=%d admin=%d", re.NextNonce("app1"), re.NextNonce(msglib.AdminApp))
	}
	if re.Checkpoint() != 10 {
		t.Fatalf("checkpoint after replay = %d", re.Checkpoint())
	}
}

func TestBindIsOneShot(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	if _, err := e.Bind("app1", mustSigner(t, 1).OwnerKey()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := e.Bind("app1", mustSigner(t, 2).OwnerKey()); !errors.Is(err, msglib.ErrAlreadyRegistered) {
		t.Fatalf("rebind should fail with AlreadyRegistered, got %v", err)
	}
}

func TestAdvance(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	if _, err := e.Advance(5); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	res, err := e.Advance(5)
	if err != nil || res.Changed {
		t.Fatalf("advancing to the current checkpoint should be a no-op: %+v %v", res, err)
	}
	if _, err := e.Advance(4); !errors.Is(err, checkpoint.ErrRegression) || msglib.RuleID(err) != "LIBREG-CKP-001" {
		t.Fatalf("expected regression, got %v", err)
	}
	if e.Checkpoint() != 5 {
		t.Fatalf("checkpoint = %d", e.Checkpoint())
	}
}

func TestSubscribeSeesCommittedChanges(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	ch, cancel := e.Journal().Subscribe(4)
	defer cancel()

	if _, err := e.SetSendLibrary("app1", 9, libA); err != nil {
		t.Fatalf("SetSendLibrary: %v", err)
	}
	rec := <-ch
	ev := rec.Entry.Event
	if ev.Type != msglib.OpSetSend || ev.To != libA || ev.App != "app1" || ev.EID != 9 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if lib, _ := e.SendLibrary("app1", 9); lib != libA {
		t.Fatalf("change not visible when published")
	}
}

func TestReplaceDefaults(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})

	if err := e.ReplaceDefaults(defaults.New(1, defaults.Pair{Send: libA, Receive: libA}, nil)); msglib.RuleID(err) != "LIBREG-DEF-003" {
		t.Fatalf("same version should be rejected, got %v", err)
	}
	if err := e.ReplaceDefaults(defaults.New(2, defaults.Pair{Send: libB, Receive: libB}, nil)); !errors.Is(err, msglib.ErrInvalidCapability) {
		t.Fatalf("receive-only send default should be rejected, got %v", err)
	}
	next := defaults.New(2, defaults.Pair{Send: libC, Receive: libB}, map[msglib.EID]defaults.Pair{7: {Receive: libA}})
	if err := e.ReplaceDefaults(next); err != nil {
		t.Fatalf("ReplaceDefaults: %v", err)
	}
	if !e.Accept("app1", 1, libB) || e.Accept("app1", 1, libDef) {
		t.Fatalf("unconfigured path should follow the new default")
	}
	if !e.Accept("app1", 7, libA) {
		t.Fatalf("per-path default not applied")
	}
	if e.Head().DefaultsVersion != 2 {
		t.Fatalf("defaults version = %d", e.Head().DefaultsVersion)
	}
}

func TestDescribeRejectsBadApp(t *testing.T) {
	testlog.Start(t)
	e := newEndpoint(t, Options{})
	if _, err := e.Describe("", 1); !errors.Is(err, msglib.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestOpenRejectsForgedJournalSeq(t *testing.T) {
	testlog.Start(t)
	store := memory.New()
	b, err := codec.Marshal(journal.Entry{Seq: 1 << 60, Checkpoint: 1, Event: journal.Event{Type: msglib.OpAdvance, Checkpoint: 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	id, err := store.Put(b)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.SetRef(journal.DefaultRef, cid.Undef, id); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	if _, err := Open(Options{Store: store}); !errors.Is(err, journal.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestOnlyExecuteAuthorizes(t *testing.T) {
	testlog.Start(t)
	admin := mustSigner(t, 1)
	owner := mustSigner(t, 2)
	stranger := mustSigner(t, 3)
	e, err := Open(Options{Store: memory.New(), AdminKey: admin.OwnerKey()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := e.Register(libA, msglib.SendAndReceive); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := e.Bind("app1", owner.OwnerKey()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	// Signed by someone other than the bound owner.
	_, err = e.Execute(sign(t, ownership.Command{Op: msglib.OpSetSend, App: "app1", EID: 1, Library: libA, Nonce: 1}, stranger))
	if !errors.Is(err, msglib.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, isDefault := e.SendLibrary("app1", 1); !isDefault {
		t.Fatalf("rejected command changed the send selection")
	}

	// The in-process mutator trusts its caller.
	res, err := e.SetSendLibrary("app1", 1, libA)
	if err != nil || !res.Changed {
		t.Fatalf("SetSendLibrary: %+v %v", res, err)
	}
	if got := e.NextNonce("app1"); got != 1 {
		t.Fatalf("direct mutation consumed a nonce: next %d", got)
	}
}
