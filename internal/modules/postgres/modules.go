package postgres

import (
	"context"
	"fmt"
	"perpctl/internal/modules/config"
	"perpctl/pkg/db"

	"go.uber.org/fx"
)

// Module registers the Postgres tx manager and PeakStore as fx providers.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, settings config.EngineSettings) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: settings.PostgresDSN,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
			NewPeakStore,
		),
		fx.Invoke(func(lc fx.Lifecycle, store *PeakStore) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return store.EnsureSchema(ctx)
				},
			})
		}),
	)
}
