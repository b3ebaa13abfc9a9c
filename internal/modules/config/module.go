package config

import "go.uber.org/fx"

// Module registers NewEngineSettings as an fx provider.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewEngineSettings,
		),
	)
}
