package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"post-responder/internal/common"
	"post-responder/internal/domain"
)

func jsonInstruction(schema domain.BoolSchema) string {
	return fmt.Sprintf(
		"Respond with a single JSON object and nothing else, shaped exactly like {\"%s\": true} or {\"%s\": false}. %s: %s",
		schema.Field, schema.Field, schema.Field, schema.Description)
}

// extractJSON 抠出第一个 { 到最后一个 } 之间的内容
// 模型偶尔会包一层 ```json ``` 或者加几句解释
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("无法提取 JSON, 模型原文: %q: %w", raw, common.ErrUnexpectedShape)
	}
	return raw[start : end+1], nil
}

// parseBool 读取 JSON 里指定的布尔字段
func parseBool(raw, field string) (bool, error) {
	clean, err := extractJSON(raw)
	if err != nil {
		return false, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return false, fmt.Errorf("JSON 解析失败: %v | 原文: %s: %w", err, clean, common.ErrUnexpectedShape)
	}

	value, ok := fields[field]
	if !ok {
		return false, fmt.Errorf("缺少字段 %q | 原文: %s: %w", field, clean, common.ErrUnexpectedShape)
	}

	var result bool
	if err := json.Unmarshal(value, &result); err != nil {
		return false, fmt.Errorf("字段 %q 不是布尔值 | 原文: %s: %w", field, clean, common.ErrUnexpectedShape)
	}
	return result, nil
}
