package telegram

import (
	"go.uber.org/fx"

	"perpctl/internal/modules/config"
	"perpctl/internal/notify"
	"perpctl/pkg/logger"
)

// newNotifier prefers a live Telegram bot when a token is configured;
// otherwise it falls back to the stdout notifier so the engine still runs
// (with operator alerts only in the logs) in a bare local/dev setup.
func newNotifier(settings config.EngineSettings) notify.Notifier {
	if settings.TelegramToken == "" {
		return notify.NewStdout()
	}
	n, err := notify.NewTelegram(settings.TelegramToken, settings.TelegramChatID)
	if err != nil {
		logger.Error("telegram: falling back to stdout notifier: %v", err)
		return notify.NewStdout()
	}
	return n
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(newNotifier),
	)
}
