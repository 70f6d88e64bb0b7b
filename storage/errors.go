package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrRefConflict = errors.New("storage: ref changed concurrently")
	ErrInvalidRef  = errors.New("storage: invalid ref name")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CheckRefName accepts names made of letters, digits, '-', '_' and '.', not
// starting with '.'.
func CheckRefName(name string) error {
	if name == "" || name[0] == '.' || len(name) > 64 {
		return ErrInvalidRef
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return ErrInvalidRef
	}
	return nil
}
