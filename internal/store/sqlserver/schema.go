// Package sqlserver keeps migration and batch bookkeeping in SQL Server.
package sqlserver

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

const (
	tableMigrations = "data_migrations"
	tableBatches    = "data_migration_batches"
)

var schema = []string{
	`IF OBJECT_ID(N'dbo.data_migrations', N'U') IS NULL
CREATE TABLE dbo.data_migrations (
	id                NVARCHAR(36)  NOT NULL PRIMARY KEY,
	name              NVARCHAR(255) NOT NULL,
	resource_types    NVARCHAR(MAX) NOT NULL,
	filters           NVARCHAR(MAX) NOT NULL,
	status            NVARCHAR(20)  NOT NULL,
	total_items       INT NOT NULL DEFAULT 0,
	processed_items   INT NOT NULL DEFAULT 0,
	successful_items  INT NOT NULL DEFAULT 0,
	failed_items      INT NOT NULL DEFAULT 0,
	batch_size        INT NOT NULL,
	last_batch_number INT NOT NULL DEFAULT 0,
	error_message     NVARCHAR(MAX) NULL,
	summary           NVARCHAR(MAX) NULL,
	started_at        DATETIME2 NULL,
	completed_at      DATETIME2 NULL,
	created_at        DATETIME2 NOT NULL
)`,
	`IF OBJECT_ID(N'dbo.data_migration_batches', N'U') IS NULL
CREATE TABLE dbo.data_migration_batches (
	id              NVARCHAR(36)  NOT NULL PRIMARY KEY,
	migration_id    NVARCHAR(36)  NOT NULL REFERENCES dbo.data_migrations(id),
	batch_number    INT NOT NULL,
	page_index      INT NOT NULL,
	page_size       INT NOT NULL,
	resource_type   NVARCHAR(50)  NOT NULL,
	status          NVARCHAR(20)  NOT NULL,
	items_requested INT NOT NULL,
	items_received  INT NOT NULL DEFAULT 0,
	items_stored    INT NOT NULL DEFAULT 0,
	filters         NVARCHAR(MAX) NOT NULL,
	api_response    NVARCHAR(MAX) NULL,
	started_at      DATETIME2 NULL,
	completed_at    DATETIME2 NULL,
	CONSTRAINT uq_batch_number UNIQUE (migration_id, batch_number)
)`,
}

// EnsureSchema creates the bookkeeping tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "creating migration schema")
		}
	}
	return nil
}
