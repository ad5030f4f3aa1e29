package sqlstore

import (
	"context"

	"github.com/uptrace/bun"
)

func SetBeforeWrite(store *UserStore, hook func(ctx context.Context, tx bun.Tx, uid string) error) {
	store.beforeWrite = hook
}
