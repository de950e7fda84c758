package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/fedinode/fedinode/internal/config"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug bool
	// Node is the local node configuration.
	Node   *config.Config
	Logger *slog.Logger

	gorm.Dialector
	gorm.Config
}

var cli struct {
	Debug  bool   `help:"Enable debug mode."`
	Config string `help:"Path to the configuration file." type:"path" env:"FEDINODE_CONFIG"`
	DSN    string `help:"Data source name, overrides the configuration file."`

	AutoMigrate  AutoMigrateCmd  `cmd:"" help:"Automigrate the database."`
	CreateUser   CreateUserCmd   `cmd:"" help:"Create a local user."`
	Serve        ServeCmd        `cmd:"" help:"Serve the federation endpoints and run the background workers."`
	Notify       NotifyCmd       `cmd:"" help:"Compute the audience of a content event and deliver it."`
	Deliver      DeliverCmd      `cmd:"" help:"Deliver pending delivery tasks of an item."`
	Resolve      ResolveCmd      `cmd:"" help:"Resolve a handle or URL to a remote actor."`
	Reconcile    ReconcileCmd    `cmd:"" help:"Backfill a remote conversation."`
	HouseKeeping HouseKeepingCmd `cmd:"" help:"Purge expired cache entries and dead retry queue entries."`
}

func main() {
	ctx := kong.Parse(&cli)
	cfg, err := config.Load(cli.Config)
	ctx.FatalIfErrorf(err)
	if cli.DSN != "" {
		cfg.DSN = cli.DSN
	}

	level := slog.LevelInfo
	logLevel := logger.Warn
	if cli.Debug {
		level = slog.LevelDebug
		logLevel = logger.Info
	}
	err = ctx.Run(&Context{
		Debug:     cli.Debug,
		Node:      cfg,
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		Dialector: newDialector(cfg.DSN),
		Config: gorm.Config{
			Logger:         logger.Default.LogMode(logLevel),
			TranslateError: true,
		},
	})
	ctx.FatalIfErrorf(err)
}
