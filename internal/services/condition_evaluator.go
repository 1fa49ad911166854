package services

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"rulify/internal/models"
)

// EvaluateConditions 对触发数据求值条件列表。纯函数，无 I/O。
// 空条件列表恒为 true（规则无条件适用）。
//
// 分组语义：同组条件按各自的 logical_operator 链式合并成组结果；
// 未分组条件直接链入总结果；最终 = 总结果 AND 所有组结果。
func EvaluateConditions(conditions []models.Condition, data map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	overall := true
	seededOverall := false
	groupResults := make(map[string]bool)
	groupOrder := []string{}

	for _, cond := range conditions {
		matched := evaluateCondition(cond, data)

		op := cond.LogicalOperator
		if op == "" {
			op = models.LogicalAnd
		}

		if cond.Group != "" {
			prev, seen := groupResults[cond.Group]
			if !seen {
				groupResults[cond.Group] = matched
				groupOrder = append(groupOrder, cond.Group)
				continue
			}
			if op == models.LogicalOr {
				groupResults[cond.Group] = prev || matched
			} else {
				groupResults[cond.Group] = prev && matched
			}
			continue
		}

		if !seededOverall {
			overall = matched
			seededOverall = true
			continue
		}
		if op == models.LogicalOr {
			overall = overall || matched
		} else {
			overall = overall && matched
		}
	}

	for _, g := range groupOrder {
		overall = overall && groupResults[g]
	}
	return overall
}

// evaluateCondition applies a single operator. A malformed field path or an
// uncoercible value is a non-match, never an error.
func evaluateCondition(cond models.Condition, data map[string]interface{}) bool {
	val, found := resolvePath(data, cond.Field)

	switch cond.Operator {
	case models.OpExists:
		return found && val != nil
	case models.OpNotExists:
		return !found || val == nil
	}

	switch cond.Operator {
	case models.OpEquals:
		return found && looseEqual(val, cond.Value)
	case models.OpNotEquals:
		return !found || !looseEqual(val, cond.Value)
	case models.OpGreaterThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return found && aok && bok && a > b
	case models.OpLessThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return found && aok && bok && a < b
	case models.OpContains:
		return found && strings.Contains(toString(val), toString(cond.Value))
	case models.OpStartsWith:
		return found && strings.HasPrefix(toString(val), toString(cond.Value))
	case models.OpEndsWith:
		return found && strings.HasSuffix(toString(val), toString(cond.Value))
	case models.OpIn:
		return found && inList(val, cond.Value)
	case models.OpNotIn:
		return !found || !inList(val, cond.Value)
	default:
		return false
	}
}

// resolvePath walks a dot-path ("ticket.customer.tier") through nested maps.
// Missing intermediate keys resolve to not-found rather than an error.
func resolvePath(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" || data == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compares numerics by value and everything else by string form,
// so JSON-decoded float64(1) still equals int(1).
func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return toString(a) == toString(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func inList(needle, list interface{}) bool {
	rv := reflect.ValueOf(list)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if looseEqual(needle, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// Interpolate replaces {{path}} tokens with values resolved from data.
// Unresolved tokens stay verbatim so the gap is visible in the output.
func Interpolate(template string, data map[string]interface{}) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : end])
		if val, ok := resolvePath(data, key); ok && val != nil {
			b.WriteString(toString(val))
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
}
