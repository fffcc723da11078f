package handler

import (
	"parley/internal/app/chat"
	"parley/internal/app/store"
	"parley/internal/configs"
)

// AppDeps bundles everything the handlers need. It replaces module-level
// state: each handler closure receives its dependencies explicitly.
type AppDeps struct {
	Config *configs.AppConfig
	Store  store.Store
	Chat   *chat.Service
	Hub    *chat.Hub
}
