package notification

import (
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// NewNotifierProvider returns the notifier selected by notification.type.
func NewNotifierProvider(lc fx.Lifecycle, cfg *config.NotificationConfig) (ports.Notifier, error) {
	if cfg.Type != "amqp" {
		logger.Infof("Notification: job completions are logged.")
		return NewLogNotifier(), nil
	}
	ch, closeFn, err := DialAMQP(cfg.AMQP)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(closeFn))
	logger.Infof("Notification: publishing job completions to exchange '%s' with key '%s'.", cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
	return NewAMQPNotifier(ch, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey), nil
}

// Module provides ports.Notifier.
var Module = fx.Provide(NewNotifierProvider)
