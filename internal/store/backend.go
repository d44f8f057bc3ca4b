package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"association/internal/attendance"
	"association/internal/config"
)

// RecordStore is a record store backend: the protocol store plus the meeting
// and member records around it.
type RecordStore interface {
	attendance.Store
	attendance.MeetingStore
	Ping(ctx context.Context) error
}

// Records is the opened record store and its connection.
type Records struct {
	RecordStore
	closers []func(ctx context.Context) error
}

// Close releases the backend connection.
func (r *Records) Close(ctx context.Context) error {
	var first error
	for _, c := range r.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type memoryRecords struct {
	*attendance.MemoryStore
}

func (memoryRecords) Ping(context.Context) error { return nil }

// OpenRecords connects the backend cfg.StoreBackend names. Postgres is migrated
// when cfg.AutoMigrate is set; Mongo gets its indexes.
func OpenRecords(ctx context.Context, cfg config.App, logger *zap.Logger) (*Records, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory record store; data is lost on exit")
		return &Records{RecordStore: memoryRecords{attendance.NewMemoryStore()}}, nil

	case "mongo":
		m, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		repo := attendance.NewMongoRepository(m.Database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = m.Close(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.Info("mongo record store connected", zap.String("database", cfg.MongoDatabase))
		return &Records{RecordStore: repo, closers: []func(context.Context) error{m.Close}}, nil

	default:
		db, err := NewDB(ctx, cfg.DatabaseURL, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			migrator, err := NewMigrator(db.Client, logger)
			if err == nil {
				err = migrator.Up()
			}
			if err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		logger.Info("postgres record store connected")
		return &Records{
			RecordStore: attendance.NewRepository(db.Client),
			closers:     []func(context.Context) error{func(context.Context) error { return db.Close() }},
		}, nil
	}
}
