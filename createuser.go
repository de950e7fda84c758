package main

import (
	"fmt"

	"github.com/fedinode/fedinode/models"
)

type CreateUserCmd struct {
	Nickname string           `required:"" help:"nickname of the user to create"`
	Name     string           `help:"display name, defaults to the nickname"`
	Email    string           `help:"email address of the user"`
	Forum    models.ForumMode `help:"forum mode: 0 none, 1 public forum, 2 private forum" default:"0"`
}

func (c *CreateUserCmd) Run(ctx *Context) error {
	env, err := ctx.env()
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = c.Nickname
	}
	owner, err := models.NewUsers(env.DB).Create(env.Config, c.Nickname, name, c.Email)
	if err != nil {
		return err
	}
	if c.Forum != models.NotForum {
		if err := env.DB.Model(owner.User).Update("forum_mode", c.Forum).Error; err != nil {
			return err
		}
	}
	fmt.Println("created", owner.Addr(), owner.Self.URL)
	return nil
}
