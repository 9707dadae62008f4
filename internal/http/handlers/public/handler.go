package public

import "github.com/tripnest/paycore/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器用于预订客户端调用的支付 API 与健康检查。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
