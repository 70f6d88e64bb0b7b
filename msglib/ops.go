package msglib

// Op names a control operation. The same names label signed commands,
// journal events and metrics.
type Op string

const (
	OpRegister          Op = "library.register"
	OpBind              Op = "owner.bind"
	OpSetSend           Op = "send.set"
	OpClearSend         Op = "send.clear"
	OpSetReceive        Op = "receive.set"
	OpClearReceive      Op = "receive.clear"
	OpSetReceiveTimeout Op = "receive.timeout"
	OpAdvance           Op = "checkpoint.advance"
)

// Ops lists every operation in a fixed order.
var Ops = []Op{
	OpRegister, OpBind,
	OpSetSend, OpClearSend,
	OpSetReceive, OpClearReceive, OpSetReceiveTimeout,
	OpAdvance,
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	for _, k := range Ops {
		if o == k {
			return true
		}
	}
	return false
}

// Admin reports whether o is authorized by the endpoint administrator rather
// than an application owner.
func (o Op) Admin() bool {
	return o == OpRegister || o == OpBind || o == OpAdvance
}

// AdminApp is the reserved application id under which administrator commands
// are sequenced.
const AdminApp AppID = "@admin"
