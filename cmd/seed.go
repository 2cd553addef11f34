package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/postgres"
	"github.com/YelzhanWeb/fooddelivery/internal/catalog"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Println("Schema applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var (
		fake int
		lat  float64
		lon  float64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load drivers into the database",
		Long: `Load drivers into the database.

Drivers come from the catalog file, or are generated with --fake.

Examples:
  foodsaga seed
  foodsaga seed --fake 50 --lat 43.24 --lon 76.89`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var fleet []*domain.Driver
			if fake > 0 {
				fleet, err = catalog.FakeFleet(fake, domain.Location{Lat: lat, Lon: lon})
			} else {
				var cat *catalog.Catalog
				cat, err = catalog.Load(cfg.Catalog)
				if err == nil {
					fleet, err = cat.Fleet()
				}
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
			}
			defer db.Close()

			created, err := seedDrivers(ctx, postgres.NewDriverRepository(db), fleet)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d of %d drivers\n", created, len(fleet))
			return nil
		},
	}

	cmd.Flags().IntVar(&fake, "fake", 0, "generate N drivers instead of reading the catalog")
	cmd.Flags().Float64Var(&lat, "lat", 43.2389, "latitude generated drivers start around")
	cmd.Flags().Float64Var(&lon, "lon", 76.8897, "longitude generated drivers start around")

	return cmd
}

type driverCreator interface {
	Create(ctx context.Context, driver *domain.Driver) error
}

// seedDrivers skips drivers that already exist.
func seedDrivers(ctx context.Context, repo driverCreator, fleet []*domain.Driver) (int, error) {
	created := 0
	for _, d := range fleet {
		err := repo.Create(ctx, d)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to seed driver %s: %w", d.ID, err)
		}
		created++
	}
	return created, nil
}
