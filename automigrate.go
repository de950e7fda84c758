package main

import (
	"github.com/fedinode/fedinode/models"
)

type AutoMigrateCmd struct {
}

func (a *AutoMigrateCmd) Run(ctx *Context) error {
	env, err := ctx.env()
	if err != nil {
		return err
	}
	return env.DB.AutoMigrate(models.AllTables()...)
}
