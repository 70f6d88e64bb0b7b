package rpc

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/msglib"
)

// Status messages carry "<kind>|<rule>|<message>" so the client can rebuild
// the structured error.
const sep = "|"

var kindCodes = map[msglib.Kind]codes.Code{
	msglib.KindUnauthorized:      codes.PermissionDenied,
	msglib.KindInvalidCapability: codes.FailedPrecondition,
	msglib.KindInvalidExpiry:     codes.FailedPrecondition,
	msglib.KindInvalidArgument:   codes.InvalidArgument,
	msglib.KindAlreadyRegistered: codes.AlreadyExists,
	msglib.KindNotRegistered:     codes.NotFound,
	msglib.KindStorage:           codes.Unavailable,
	msglib.KindInternal:          codes.Internal,
}

// rules that wrap checkpoint.ErrRegression on the server side.
var regressionRules = map[string]bool{
	"LIBREG-CKP-001": true,
	"LIBREG-CKP-002": true,
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *msglib.Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, err.Error())
	}
	code, ok := kindCodes[e.Kind]
	if !ok {
		code = codes.Unknown
	}
	return status.Error(code, string(e.Kind)+sep+e.RuleID+sep+e.Error())
}

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	parts := strings.SplitN(st.Message(), sep, 3)
	if len(parts) != 3 {
		return err
	}
	kind := msglib.Kind(parts[0])
	if _, known := kindCodes[kind]; !known {
		return err
	}
	e := &msglib.Error{Kind: kind, RuleID: parts[1], Message: parts[2]}
	if regressionRules[e.RuleID] {
		if i := strings.Index(e.Message, ": "+checkpoint.ErrRegression.Error()); i >= 0 {
			e.Message = e.Message[:i]
		}
		e.Cause = checkpoint.ErrRegression
	}
	return e
}
