package main

import (
	"context"
	"fmt"

	"mentorlink/internal/app/db"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/store/memstore"
	"mentorlink/internal/app/store/mongostore"
	"mentorlink/internal/app/store/pgstore"
	"mentorlink/internal/app/user"
	"mentorlink/internal/configs"
	"mentorlink/internal/pkg/logx"
)

// backend is a message store that also serves as the user directory.
type backend interface {
	messaging.Store
	user.Directory
}

// userWriter is implemented by the persistent backends.
type userWriter interface {
	UpsertUser(ctx context.Context, u user.User) error
}

// openBackend connects the store selected by STORE_DRIVER. The returned func
// releases its connections.
func openBackend(ctx context.Context, cfg *configs.AppConfig) (backend, func(), error) {
	switch cfg.StoreDriver {
	case configs.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN, true)
		if err != nil {
			return nil, nil, err
		}
		logx.Info("Connected to PostgreSQL.")
		return pgstore.New(pool), pool.Close, nil

	case configs.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}

		store := mongostore.New(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}

		logx.Info("Connected to MongoDB.", "database", cfg.MongoDatabase)
		return store, func() { _ = client.Disconnect(context.Background()) }, nil

	case configs.DriverMemory:
		logx.Warn("Using the in-memory store. Messages are lost on restart.")
		return memstore.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
