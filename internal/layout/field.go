package layout

import (
	"bytes"
	"encoding/json"
)

type fieldState uint8

const (
	stateAbsent fieldState = iota
	stateNull
	stateSet
)

// Field 是布局中一个可选模块的三态包装：
// - absent：JSON 中没有该 key（合并时向下一层回退）
// - null：模块被显式移除（合并时保留，不回退到默认值）
// - set：模块启用并携带取值
type Field[T any] struct {
	state fieldState
	value T
}

// Some 返回一个已启用的字段。
func Some[T any](v T) Field[T] {
	return Field[T]{state: stateSet, value: v}
}

// Null 返回一个被显式移除的字段。
func Null[T any]() Field[T] {
	return Field[T]{state: stateNull}
}

// Get 返回字段取值，仅当字段处于 set 状态时 ok 为 true。
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == stateSet
}

func (f Field[T]) IsSet() bool    { return f.state == stateSet }
func (f Field[T]) IsNull() bool   { return f.state == stateNull }
func (f Field[T]) IsAbsent() bool { return f.state == stateAbsent }

// IsZero 让 `omitzero` 在编码时省略 absent 字段；null 字段仍编码为 null。
func (f Field[T]) IsZero() bool { return f.state == stateAbsent }

// Or 在 f 为 absent 时返回 fallback，否则返回 f 本身（null 不回退）。
func (f Field[T]) Or(fallback Field[T]) Field[T] {
	if f.state == stateAbsent {
		return fallback
	}
	return f
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != stateSet {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

func mapField[A, B any](f Field[A], fn func(A) B) Field[B] {
	switch f.state {
	case stateSet:
		return Some(fn(f.value))
	case stateNull:
		return Null[B]()
	default:
		return Field[B]{}
	}
}
