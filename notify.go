package main

import (
	"context"
	"fmt"

	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
)

type NotifyCmd struct {
	Command string `arg:"" help:"command kind, eg. wall-new, comment-new, like, drop, mail, relocate"`
	ID      string `arg:"" help:"id of the item, private message, suggestion or user the command is about"`
}

func (n *NotifyCmd) Run(ctx *Context) error {
	cmd, err := parseCommand(n.Command)
	if err != nil {
		return err
	}
	id, err := snowflake.Parse(n.ID)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", n.ID, err)
	}
	env, err := ctx.env()
	if err != nil {
		return err
	}
	e := newEngine(env, metrics.Discard, false)
	return e.notifier.Notify(context.Background(), cmd, id)
}

type DeliverCmd struct {
	Command  string   `arg:"" help:"command kind the tasks were recorded for"`
	ID       string   `arg:"" help:"id the tasks were recorded for"`
	Contacts []string `help:"contact ids to deliver to, defaults to every pending task"`
}

func (d *DeliverCmd) Run(ctx *Context) error {
	cmd, err := parseCommand(d.Command)
	if err != nil {
		return err
	}
	id, err := snowflake.Parse(d.ID)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", d.ID, err)
	}
	env, err := ctx.env()
	if err != nil {
		return err
	}

	var batch []snowflake.ID
	for _, s := range d.Contacts {
		cid, err := snowflake.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid contact id %q: %w", s, err)
		}
		batch = append(batch, cid)
	}
	if len(batch) == 0 {
		batch, err = models.NewTasks(env.DB).Pending(cmd, id)
		if err != nil {
			return err
		}
	}
	fmt.Println("delivering", cmd, id, "to", len(batch), "recipients")
	e := newEngine(env, metrics.Discard, false)
	return e.executor.Execute(context.Background(), cmd, id, batch)
}

func parseCommand(s string) (models.Command, error) {
	for _, cmd := range models.Commands {
		if string(cmd) == s {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}
