package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/config"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/migration"
	"github.com/BartekS5/casemigrate/internal/store"
	mongostore "github.com/BartekS5/casemigrate/internal/store/mongo"
	"github.com/BartekS5/casemigrate/internal/store/sqlserver"
	"github.com/BartekS5/casemigrate/pkg/database"
	"github.com/BartekS5/casemigrate/pkg/logger"
)

// needs says which backends a command uses besides the record store.
type needs struct {
	sql bool
	api bool
}

// deps are the backends a command runs against.
type deps struct {
	Records    store.Records
	Migrations migration.Repository
	Source     api.Client
	Metrics    *metrics.Metrics
	BatchSize  int
	closers    []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

type opener func(ctx context.Context, n needs) (*deps, error)

// openDeps connects to the configured databases and API.
func openDeps(ctx context.Context, n needs) (*deps, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if n.sql {
		if err := cfg.RequireSQL(); err != nil {
			return nil, err
		}
	}
	if n.api {
		if err := cfg.RequireAPI(); err != nil {
			return nil, err
		}
	}

	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoConnString)
	if err != nil {
		return nil, err
	}
	d := &deps{Metrics: metrics.New(), BatchSize: cfg.BatchSize}
	d.closers = append(d.closers, func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warnf("Disconnecting MongoDB: %v", err)
		}
	})

	records := mongostore.NewRecords(mongoClient, cfg.MongoDatabase)
	if err := records.EnsureIndexes(ctx); err != nil {
		d.Close()
		return nil, err
	}
	d.Records = records

	if n.sql {
		db, err := database.ConnectSQL(ctx, cfg.SQLConnString)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, func() { db.Close() })
		if err := sqlserver.EnsureSchema(ctx, db); err != nil {
			d.Close()
			return nil, err
		}
		d.Migrations = sqlserver.NewMigrations(db)
	}
	if n.api {
		d.Source = api.NewHTTPClient(cfg.APIBaseURL, cfg.APITimeout)
	}
	return d, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warnf("Writing metrics to %s: %v", path, err)
	}
}
