package model

import (
	"errors"
	"fmt"
)

// NumTypes 为模型变体数量 (side × action)。
const NumTypes = 4

// ErrUnknownModelType 表示索引越界。
var ErrUnknownModelType = errors.New("model: 未知的模型类型")

// Side 交易方向。
type Side int

const (
	SideLong Side = iota
	SideShort
)

// Sign 多头为 +1，空头为 -1。
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Action 开仓或平仓。
type Action int

const (
	ActionOpening Action = iota
	ActionClosing
)

func (a Action) String() string {
	switch a {
	case ActionOpening:
		return "opening"
	case ActionClosing:
		return "closing"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Type 为 (方向, 动作) 组合，对应一个独立的决策模型。
type Type struct {
	Side   Side
	Action Action
}

var typeTable = [NumTypes]Type{
	{Side: SideLong, Action: ActionOpening},
	{Side: SideLong, Action: ActionClosing},
	{Side: SideShort, Action: ActionOpening},
	{Side: SideShort, Action: ActionClosing},
}

// Index 返回稠密索引 side*2 + action。
func (t Type) Index() int {
	return int(t.Side)*2 + int(t.Action)
}

// Closing 返回同方向的平仓模型类型。
func (t Type) Closing() Type {
	return Type{Side: t.Side, Action: ActionClosing}
}

// String 形如 opening_long，用于持久化文件名。
func (t Type) String() string {
	return t.Action.String() + "_" + t.Side.String()
}

// TypeFromIndex 为 Index 的逆映射。
func TypeFromIndex(i int) (Type, error) {
	if i < 0 || i >= NumTypes {
		return Type{}, fmt.Errorf("%w: %d", ErrUnknownModelType, i)
	}
	return typeTable[i], nil
}

// AllTypes 按索引顺序返回全部模型类型。
func AllTypes() [NumTypes]Type {
	return typeTable
}
