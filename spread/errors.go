package spread

import (
	"errors"
	"fmt"
)

// 错误分类：只有配置错误与不变量破坏会终止实例，其余均在本地吸收并记录日志。
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrData               = errors.New("data error")
	ErrInvariantViolation = errors.New("invariant violation")
)

var (
	ErrLegCountMismatch = fmt.Errorf("%w: legs and coefficients length mismatch", ErrConfiguration)
	ErrZeroCoefficient  = fmt.Errorf("%w: coefficient must be non-zero", ErrConfiguration)
	ErrNoLegs           = fmt.Errorf("%w: at least one leg is required", ErrConfiguration)
	ErrDuplicateLeg     = fmt.Errorf("%w: duplicate leg symbol", ErrConfiguration)

	ErrUnknownLeg       = fmt.Errorf("%w: unknown leg symbol", ErrData)
	ErrNonPositivePrice = fmt.Errorf("%w: non-positive price", ErrData)
)

// IsFatal reports whether err must halt the spread instance.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvariantViolation)
}
