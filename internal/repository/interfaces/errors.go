package interfaces

import "errors"

// ErrDuplicate 违反唯一约束
var ErrDuplicate = errors.New("duplicate record")
