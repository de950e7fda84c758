package models

import (
	"github.com/fedinode/fedinode/internal/config"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// Env is passed explicitly to every federation component.
type Env struct {
	// DB is the database connection.
	DB     *gorm.DB
	Logger *slog.Logger
	// Config is the local node configuration.
	Config *config.Config
}

func (e *Env) Log() *slog.Logger {
	return e.Logger
}
