package public

import (
	handlershared "github.com/tripnest/paycore/internal/http/handlers/shared"
	"github.com/tripnest/paycore/internal/models"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondPaymentError(c *gin.Context, err error) {
	handlershared.RespondPaymentError(c, err)
}

func paymentView(record *models.PaymentRecord) *handlershared.PaymentView {
	return handlershared.NewPaymentView(record)
}
