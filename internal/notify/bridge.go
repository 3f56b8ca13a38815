package notify

import (
	"context"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// New builds the bridge selected by cfg.Notify.Driver
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Bridge, error) {
	switch cfg.Notify.Driver {
	case "", "local":
		return NewLocalBridge(log), nil
	case "none":
		return NewNopBridge(), nil
	case "redis":
		return NewRedisBridge(ctx, cfg.Redis, cfg.Notify.Channel, log)
	case "amqp":
		return NewAMQPBridge(cfg.AMQP, cfg.Notify.Channel, log)
	default:
		return nil, fmt.Errorf("unsupported notify driver: %s", cfg.Notify.Driver)
	}
}
