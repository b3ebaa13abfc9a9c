package exchange

import (
	"go.uber.org/fx"

	"perpctl/internal/exchange"
	"perpctl/internal/modules/config"
)

const (
	defaultRatePerSec = 8.0
	defaultBurst      = 20
)

func newGateway(settings config.EngineSettings) exchange.Gateway {
	return exchange.NewHTTPGateway(
		settings.ExchangeBaseURL,
		settings.ExchangeAPIKey,
		settings.ExchangeAPISecret,
		"",
		defaultRatePerSec,
		defaultBurst,
	)
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(newGateway),
	)
}
