package app

import (
	"errors"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/provider"
	"github.com/tripnest/paycore/internal/router"
	"github.com/tripnest/paycore/internal/service"
	"github.com/tripnest/paycore/internal/worker"
)

// BuildRunner 构建服务运行器，处理方凭证无效时拒绝启动
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if mode != ModeAll && mode != ModeAPI && mode != ModeWorker {
		return nil, errors.New("unknown mode " + mode + " (expected all, api or worker)")
	}

	validation, err := service.NewPaymentConfigValidator(cfg.Payment, cfg.Server.Environment).ValidateAndLog()
	if err != nil {
		return nil, err
	}

	container, err := provider.NewContainer(cfg, validation)
	if err != nil {
		return nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine)
		services = append(services, httpService)
	}

	// 初始化 Worker 服务；all 模式下队列未启用时仅运行 HTTP
	if mode == ModeWorker || (mode == ModeAll && cfg.Queue.Enabled) {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			container.Close()
			return nil, err
		}
		services = append(services, workerService)
	}

	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.cleanup = container.Close
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "environment", opts.Config.Server.Environment)
	return RunWithOptions(runner, opts)
}
