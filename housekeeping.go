package main

import (
	"fmt"

	"github.com/fedinode/fedinode/models"
	"gorm.io/gorm"
)

type HouseKeepingCmd struct {
}

func (c *HouseKeepingCmd) Run(ctx *Context) error {
	env, err := ctx.env()
	if err != nil {
		return err
	}
	return env.DB.Transaction(func(tx *gorm.DB) error {
		n, err := models.NewCache(tx).Purge()
		if err != nil {
			return err
		}
		fmt.Println("deleted", n, "expired cache entries")

		retries := models.NewRetryQueue(tx)
		n, err = retries.PurgeArchived()
		if err != nil {
			return err
		}
		fmt.Println("deleted", n, "queued envelopes for archived contacts")

		n, err = retries.PurgeExhausted(env.Config.Delivery.RetryAttempts)
		if err != nil {
			return err
		}
		fmt.Println("deleted", n, "queued envelopes which exhausted their attempts")

		// refresh requests whose contact has gone
		res := tx.Exec(`
			DELETE FROM contact_refresh_requests
			WHERE contact_id NOT IN (SELECT id FROM contacts)
		`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "orphaned refresh requests")
		return nil
	})
}
