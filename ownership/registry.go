// Package ownership records who may change an application's selections.
//
// Owner bindings come from the bootstrap flow and are one-shot. Every
// mutating command is signed by the key bound to its scope and carries the
// next nonce of that scope, so a captured command cannot be replayed.
package ownership

import (
	"sort"
	"sync"

	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
)

// Binding is one application and its owner key.
type Binding struct {
	App   msglib.AppID `json:"app"`
	Owner string       `json:"owner"`
	Nonce uint64       `json:"nonce"`
}

type scope struct {
	key   keys.PublicKey
	owner string
	nonce uint64 // last consumed
}

// Registry holds owner bindings and nonce sequences.
type Registry struct {
	mu     sync.RWMutex
	scopes map[msglib.AppID]*scope
}

// NewRegistry creates a registry whose administrator scope is bound to
// adminKey. An empty adminKey leaves administrator commands unauthorized.
func NewRegistry(adminKey string) (*Registry, error) {
	r := &Registry{scopes: make(map[msglib.AppID]*scope)}
	if adminKey != "" {
		pub, err := parseKey(adminKey)
		if err != nil {
			return nil, err
		}
		r.scopes[msglib.AdminApp] = &scope{key: pub, owner: pub.String()}
	}
	return r, nil
}

func parseKey(s string) (keys.PublicKey, error) {
	pub, err := keys.ParseOwnerKey(s)
	if err != nil {
		return keys.PublicKey{}, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-OWN-001", "invalid owner key", err)
	}
	return pub, nil
}

// CheckBind validates a binding without applying it.
func (r *Registry) CheckBind(app msglib.AppID, ownerKey string) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if app == msglib.AdminApp {
		return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-OWN-002", "%s is reserved", msglib.AdminApp)
	}
	if _, err := parseKey(ownerKey); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scopes[app]; ok {
		return msglib.Errorf(msglib.KindAlreadyRegistered, "LIBREG-OWN-003", "application %s already owned by %s", app, s.owner)
	}
	return nil
}

// Bind records ownerKey as the owner of app.
func (r *Registry) Bind(app msglib.AppID, ownerKey string) error {
	if err := r.CheckBind(app, ownerKey); err != nil {
		return err
	}
	pub, _ := parseKey(ownerKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scopes[app]; ok {
		return msglib.Errorf(msglib.KindAlreadyRegistered, "LIBREG-OWN-003", "application %s already owned by %s", app, s.owner)
	}
	r.scopes[app] = &scope{key: pub, owner: pub.String()}
	return nil
}

// Owner returns the owner key bound to app.
func (r *Registry) Owner(app msglib.AppID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[app]
	if !ok {
		return "", false
	}
	return s.owner, true
}

// NextNonce returns the nonce the next command in app's scope must carry.
func (r *Registry) NextNonce(app msglib.AppID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scopes[app]; ok {
		return s.nonce + 1
	}
	return 1
}

// Authorize decodes s and checks its signature and nonce against the scope of
// the command. It does not consume the nonce; call Consume once the command
// has been applied.
func (r *Registry) Authorize(s Signed) (Command, error) {
	cmd, err := s.Decode()
	if err != nil {
		return Command{}, err
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}

	sc := cmd.Scope()
	r.mu.RLock()
	st, ok := r.scopes[sc]
	var pub keys.PublicKey
	var last uint64
	if ok {
		pub, last = st.key, st.nonce
	}
	r.mu.RUnlock()

	if !ok {
		return Command{}, msglib.Errorf(msglib.KindUnauthorized, "LIBREG-AUTH-001", "no owner bound for %s", sc)
	}
	if err := keys.Verify(pub, s.HashAlg, s.Command, s.Signature); err != nil {
		return Command{}, msglib.Wrap(msglib.KindUnauthorized, "LIBREG-AUTH-002", "signature rejected for "+string(sc), err)
	}
	if cmd.Nonce != last+1 {
		return Command{}, msglib.Errorf(msglib.KindUnauthorized, "LIBREG-AUTH-003",
			"nonce %d for %s, expected %d", cmd.Nonce, sc, last+1)
	}
	return cmd, nil
}

// Consume marks nonce used in app's scope. Nonces only move forward.
func (r *Registry) Consume(app msglib.AppID, nonce uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scopes[app]; ok && nonce > s.nonce {
		s.nonce = nonce
	}
}

// Bindings lists application bindings ordered by application id. The
// administrator scope is not included.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.scopes))
	for app, s := range r.scopes {
		if app == msglib.AdminApp {
			continue
		}
		out = append(out, Binding{App: app, Owner: s.owner, Nonce: s.nonce})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].App < out[j].App })
	return out
}
