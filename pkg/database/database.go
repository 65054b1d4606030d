package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/BartekS5/casemigrate/pkg/logger"
)

const pingTimeout = 5 * time.Second

// ConnectSQL opens the tracking database and pings it.
func ConnectSQL(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening SQL Server database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to SQL Server (ping failed)")
	}

	logger.Info("Connected to SQL Server.")
	return db, nil
}

// ConnectMongo connects to the record store and pings the primary.
func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, errors.Wrap(err, "creating MongoDB client")
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), pingTimeout)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, errors.Wrap(err, "connecting to MongoDB (ping failed)")
	}

	logger.Info("Connected to MongoDB.")
	return client, nil
}
