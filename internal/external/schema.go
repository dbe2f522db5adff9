package external

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mautops/certificate-gin/internal/utils"
)

// ParamType 参数类型
type ParamType string

// 参数类型
const (
	ParamInt    ParamType = "int"
	ParamNoTags ParamType = "notags"
	ParamBool   ParamType = "bool"
)

// Param 参数声明
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     interface{}
}

// ReturnKind 返回值结构
type ReturnKind int

// 返回值结构
const (
	ReturnNone ReturnKind = iota
	ReturnSingle
	ReturnMultiple
)

// Field 返回结构字段
type Field struct {
	Name        string
	Type        ParamType
	Description string
}

// Returns 返回值声明
type Returns struct {
	Kind   ReturnKind
	Fields []Field
}

// Args 校验后的参数
type Args map[string]interface{}

// Int 整数参数
func (a Args) Int(name string) int64 {
	v, _ := a[name].(int64)
	return v
}

// String 字符串参数
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Bool 布尔参数
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// InvalidParameterError 参数无效
type InvalidParameterError struct {
	Param   string
	Message string
}

func (e *InvalidParameterError) Error() string {
	if e.Param == "" {
		return "Invalid parameter value detected (" + e.Message + ")"
	}
	return fmt.Sprintf("Invalid parameter value detected (%s: %s)", e.Param, e.Message)
}

// validateParameters 按声明校验并清理参数
func validateParameters(params []Param, raw map[string]interface{}) (Args, error) {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	for key := range raw {
		if !declared[key] {
			return nil, &InvalidParameterError{Message: "Unexpected keys (" + key + ") detected in parameter array."}
		}
	}

	args := make(Args, len(params))
	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &InvalidParameterError{Param: p.Name, Message: "Missing required key in single structure"}
			}
			args[p.Name] = p.Default
			continue
		}

		cleaned, err := cleanValue(p.Type, v)
		if err != nil {
			return nil, &InvalidParameterError{Param: p.Name, Message: err.Error()}
		}
		args[p.Name] = cleaned
	}
	return args, nil
}

// cleanValue 按类型转换和清理值
func cleanValue(t ParamType, v interface{}) (interface{}, error) {
	switch t {
	case ParamInt:
		return toInt(v)
	case ParamNoTags:
		switch s := v.(type) {
		case string:
			return utils.StripTags(s), nil
		case float64, int, int64, json.Number:
			return fmt.Sprint(s), nil
		default:
			return nil, fmt.Errorf("text value expected")
		}
	case ParamBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		default:
			n, err := toInt(v)
			if err != nil || (n != 0 && n != 1) {
				return nil, fmt.Errorf("boolean value expected")
			}
			return n == 1, nil
		}
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", t)
	}
}

// toInt 转换为整数,只接受整数值
func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("integer value expected")
		}
		// [-2^63, 2^63) 之外的值转换结果未定义
		if n < -(1<<63) || n >= 1<<63 {
			return 0, fmt.Errorf("integer value out of range")
		}
		return int64(n), nil
	case json.Number:
		return strconv.ParseInt(n.String(), 10, 64)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("integer value expected")
		}
		return i, nil
	default:
		return 0, fmt.Errorf("integer value expected")
	}
}

// cleanReturn 按返回值声明清理结果
func cleanReturn(r Returns, result interface{}) (interface{}, error) {
	switch r.Kind {
	case ReturnNone:
		return nil, nil
	case ReturnSingle:
		var item map[string]interface{}
		if err := remarshal(result, &item); err != nil {
			return nil, err
		}
		return cleanStructure(r.Fields, item)
	case ReturnMultiple:
		var items []map[string]interface{}
		if err := remarshal(result, &items); err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			cleaned, err := cleanStructure(r.Fields, item)
			if err != nil {
				return nil, err
			}
			out = append(out, cleaned)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported return kind %d", r.Kind)
	}
}

// cleanStructure 只保留声明的字段
func cleanStructure(fields []Field, item map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, ok := item[f.Name]
		if !ok {
			return nil, fmt.Errorf("invalid response value detected: missing %s", f.Name)
		}
		cleaned, err := cleanValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("invalid response value detected: %s: %w", f.Name, err)
		}
		out[f.Name] = cleaned
	}
	return out, nil
}

func remarshal(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response structure: %w", err)
	}
	return nil
}
