package admin

import (
	handlershared "github.com/tripnest/paycore/internal/http/handlers/shared"
	"github.com/tripnest/paycore/internal/http/response"

	"github.com/gin-gonic/gin"
)

func getOperator(c *gin.Context) (string, bool) {
	operator := handlershared.GetOperator(c)
	if operator == "" {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return "", false
	}
	return operator, true
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}
