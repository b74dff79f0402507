package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/Shopify/go-lua"
)

// pushValue pushes a Go value decoded from JSON (or built by the pipeline)
// onto the Lua stack.
func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case int:
		l.PushInteger(x)
	case int64:
		l.PushInteger(int(x))
	case float64:
		l.PushNumber(x)
	case float32:
		l.PushNumber(float64(x))
	case []any:
		l.CreateTable(len(x), 0)
		for i, item := range x {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case []string:
		l.CreateTable(len(x), 0)
		for i, item := range x {
			l.PushString(item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		// sorted so table construction does not depend on map order
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(l, x[k])
			l.SetField(-2, k)
		}
	case fmt.Stringer:
		l.PushString(x.String())
	default:
		l.PushString(fmt.Sprint(x))
	}
}

func tableToMap(l *lua.State, index int) map[string]any {
	output := map[string]any{}
	if l.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = l.AbsIndex(index)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			output[key] = luaToGo(l, -1)
		}
		l.Pop(1)
	}
	return output
}

func luaToGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

// tableToGo returns []any for sequences and map[string]any otherwise. An
// empty table is an empty sequence.
func tableToGo(l *lua.State, index int) any {
	if l.TypeOf(index) != lua.TypeTable {
		return nil
	}

	index = l.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		count++
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if count == 0 {
		return []any{}
	}
	if isArray && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, luaToGo(l, -1))
			l.Pop(1)
		}
		return result
	}

	return tableToMap(l, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int(value)
	}
	return value
}
