package sqlstore

import "github.com/goliatone/go-connections/core"

var (
	_ core.UserStore = (*UserStore)(nil)
	_ core.UserStore = (*CachedUserStore)(nil)
	_ OwnedUserStore = (*UserStore)(nil)
	_ OwnedUserStore = (*CachedUserStore)(nil)
)
