package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedinode/fedinode/conversation"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/models"
)

type ReconcileCmd struct {
	Conversation string `arg:"" help:"conversation URI or tag: reference to backfill"`
	User         string `required:"" help:"nickname of the local user importing the conversation"`
}

func (r *ReconcileCmd) Run(ctx *Context) error {
	env, err := ctx.env()
	if err != nil {
		return err
	}
	user, err := models.NewUsers(env.DB).FindByNickname(r.User)
	if err != nil {
		return fmt.Errorf("failed to find user %s: %w", r.User, err)
	}
	e := newEngine(env, metrics.Discard, false)
	id, err := e.reconciler.Reconcile(context.Background(), r.Conversation, user.ID, nil)
	if errors.Is(err, conversation.ErrNotFound) {
		fmt.Println("conversation not found:", r.Conversation)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("thread", id)
	return nil
}
