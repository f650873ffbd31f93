// Package schema 加载 JSON 文件，并按其自带的相对 $schema 做校验
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var ErrValidation = errors.New("schema validation failed")

// LoadValidated 读取 path 指向的 JSON
// 顶层对象的 $schema 是 "./" 或 "../" 开头的相对路径时，
// 以 JSON 文件所在目录为基准编译该 schema 并校验；否则原样返回
func LoadValidated(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ref, ok := relativeSchema(inst)
	if !ok {
		return inst, nil
	}

	schemaPath, err := filepath.Abs(filepath.Join(filepath.Dir(path), ref))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	sch, err := c.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", schemaPath, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, path, err)
	}
	return inst, nil
}

// Decode 校验后解码到 v
func Decode(path string, v any) error {
	inst, err := LoadValidated(path)
	if err != nil {
		return err
	}
	// jsonschema 的实例用 json.Number 表示数字，回写一次交给 encoding/json
	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func relativeSchema(inst any) (string, bool) {
	obj, ok := inst.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := obj["$schema"].(string)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		return ref, true
	}
	return "", false
}
