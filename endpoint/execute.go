package endpoint

import (
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
)

// Execute authorizes a signed command and applies it. The command's nonce is
// consumed only when the command changes state; a rejected or no-op command
// can be resubmitted with the same nonce.
//
// For receive.timeout commands, Library names the previous library.
func (e *Endpoint) Execute(s ownership.Signed) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd, err := e.owners.Authorize(s)
	if err != nil {
		op := msglib.Op("unknown")
		if c, derr := s.Decode(); derr == nil && c.Op.Valid() {
			op = c.Op
		}
		return Result{Op: op}, e.rejected(op, err)
	}
	a := authz{scope: cmd.Scope(), nonce: cmd.Nonce}
	key := cmd.Path()

	switch cmd.Op {
	case msglib.OpRegister:
		return e.register(cmd.Library, cmd.Capability, a)
	case msglib.OpBind:
		return e.bind(cmd.App, cmd.Owner, a)
	case msglib.OpSetSend:
		return e.setSend(key, cmd.Library, a)
	case msglib.OpClearSend:
		return e.clearSend(key, a)
	case msglib.OpSetReceive:
		return e.setReceive(key, cmd.Library, cmd.Expiry, a)
	case msglib.OpSetReceiveTimeout:
		return e.setTimeout(key, cmd.Library, cmd.Expiry, a)
	case msglib.OpClearReceive:
		return e.clearReceive(key, a)
	case msglib.OpAdvance:
		return e.advance(cmd.Checkpoint, a)
	default:
		err := msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-001", "unknown operation %q", string(cmd.Op))
		return Result{Op: cmd.Op}, e.rejected(cmd.Op, err)
	}
}
