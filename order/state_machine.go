package order

import (
	"fmt"
	"sort"
)

type transition struct {
	from Status
	to   Status
}

// StateMachine 订单状态机。构造后只读，可在多个 Manager 间共享。
type StateMachine struct {
	legal map[transition]struct{}
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{legal: make(map[transition]struct{})}
	add := func(from Status, to ...Status) {
		for _, s := range to {
			sm.legal[transition{from, s}] = struct{}{}
		}
	}

	// 成交回报可能早于确认到达，PENDING/NEW 可以直接进入成交态
	add(StatusPending, StatusNew, StatusAck, StatusPartial, StatusFilled, StatusCanceled, StatusRejected)
	add(StatusNew, StatusAck, StatusPartial, StatusFilled, StatusCanceling, StatusCanceled, StatusRejected, StatusExpired)
	add(StatusAck, StatusPartial, StatusFilled, StatusCanceling, StatusCanceled, StatusExpired)
	add(StatusPartial, StatusFilled, StatusCanceling, StatusCanceled, StatusExpired)
	// 撤单过程中仍可能成交
	add(StatusCanceling, StatusCanceled, StatusFilled, StatusPartial)

	// 终态不能转换（FILLED, CANCELED, REJECTED, EXPIRED）
	return sm
}

// ValidateTransition 验证状态转换是否合法，相同状态视为幂等。
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if _, ok := sm.legal[transition{from, to}]; !ok {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态（按名称排序）
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	allowed := make([]Status, 0)
	for t := range sm.legal {
		if t.from == current {
			allowed = append(allowed, t.to)
		}
	}
	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	return allowed
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(status Status) bool {
	switch status {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}
