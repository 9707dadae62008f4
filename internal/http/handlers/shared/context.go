package shared

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorContextKey 管理端鉴权后写入的操作人标识
const OperatorContextKey = "operator"

// GetOperator 读取当前管理端操作人，未鉴权时返回空串。
func GetOperator(c *gin.Context) string {
	value, ok := c.Get(OperatorContextKey)
	if !ok {
		return ""
	}
	operator, _ := value.(string)
	return strings.TrimSpace(operator)
}
