package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}
	return st, nil
}
