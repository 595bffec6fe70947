package domain

import (
	"encoding/json"
	"fmt"
)

// ValueType — объявленный тип значения порта.
type ValueType string

const (
	// ValueTypeAny — порт принимает любое значение.
	ValueTypeAny ValueType = "Any"

	// ValueTypeString — строка.
	ValueTypeString ValueType = "String"

	// ValueTypeNumber — целое или дробное число.
	ValueTypeNumber ValueType = "Number"

	// ValueTypeBoolean — булево значение.
	ValueTypeBoolean ValueType = "Boolean"
)

// String возвращает строковое представление ValueType.
func (t ValueType) String() string {
	if t == "" {
		return string(ValueTypeAny)
	}
	return string(t)
}

// ParseValueType парсит строку в ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch ValueType(s) {
	case ValueTypeAny, "":
		return ValueTypeAny, nil
	case ValueTypeString:
		return ValueTypeString, nil
	case ValueTypeNumber:
		return ValueTypeNumber, nil
	case ValueTypeBoolean:
		return ValueTypeBoolean, nil
	default:
		return "", fmt.Errorf("unknown value type %q", s)
	}
}

// CompatibleWith проверяет совместимость типов двух концов связи.
// Any совместим с любым типом.
func (t ValueType) CompatibleWith(other ValueType) bool {
	if t.normalize() == ValueTypeAny || other.normalize() == ValueTypeAny {
		return true
	}
	return t == other
}

// Accepts проверяет, подходит ли значение под объявленный тип.
// nil допустим для любого типа (значение ещё не установлено).
func (t ValueType) Accepts(v any) bool {
	if v == nil {
		return true
	}

	switch t.normalize() {
	case ValueTypeAny:
		return true
	case ValueTypeString:
		_, ok := v.(string)
		return ok
	case ValueTypeNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
			return true
		}
		return false
	case ValueTypeBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

func (t ValueType) normalize() ValueType {
	if t == "" {
		return ValueTypeAny
	}
	return t
}
