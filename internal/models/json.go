package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSON 通用 JSON 对象字段
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口，以文本写入以便 json_extract / jsonb 读取
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var bytes []byte
	switch typed := value.(type) {
	case []byte:
		bytes = typed
	case string:
		bytes = []byte(typed)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Merge 返回合并 delta 后的新对象，delta 中同名键覆盖原值
func (j JSON) Merge(delta map[string]interface{}) JSON {
	merged := make(JSON, len(j)+len(delta))
	for key, value := range j {
		merged[key] = value
	}
	for key, value := range delta {
		merged[key] = value
	}
	return merged
}
