package order

import (
	"errors"
	"fmt"
)

var (
	// ErrExecution 执行类错误，由调用方吸收，不中断策略。
	ErrExecution = errors.New("execution error")

	ErrRejected      = fmt.Errorf("%w: order rejected", ErrExecution)
	ErrConstraint    = fmt.Errorf("%w: symbol constraint violated", ErrExecution)
	ErrInvalidVolume = fmt.Errorf("%w: volume must be positive", ErrExecution)

	ErrUnknownOrder   = errors.New("unknown order")
	ErrDuplicateTrade = errors.New("duplicate trade")
)
