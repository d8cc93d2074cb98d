package store

import (
	"context"
	"fmt"

	"github.com/datashop/datashop/config"
	"github.com/datashop/datashop/internal/errors"
)

// Open builds the backend selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		return ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StorePostgres:
		s, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close(ctx)
			return nil, errors.NewStoreFault("", "migrate postgres", err)
		}
		return s, nil
	case config.StoreFile, "":
		return NewFileStore(cfg.DataDir), nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.NewConfiguration(fmt.Sprintf("unknown store backend %q", cfg.Store), nil)
	}
}
