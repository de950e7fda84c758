package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/go-json-experiment/json"
)

type ResolveCmd struct {
	Reference string `arg:"" help:"user@host address or profile URL to resolve"`
	Network   string `help:"only try this protocol, eg. dfrn, diaspora, ostatus"`
	User      string `help:"nickname of the local user resolving, needed for mail contacts"`
	Refresh   bool   `help:"bypass the resolver cache"`
}

func (r *ResolveCmd) Run(ctx *Context) error {
	filter, err := models.ParseProtocol(r.Network)
	if err != nil {
		return err
	}
	env, err := ctx.env()
	if err != nil {
		return err
	}
	var uid snowflake.ID
	if r.User != "" {
		user, err := models.NewUsers(env.DB).FindByNickname(r.User)
		if err != nil {
			return fmt.Errorf("failed to find user %s: %w", r.User, err)
		}
		uid = user.ID
	}

	e := newEngine(env, metrics.Discard, false)
	resolve := e.resolver.Resolve
	if r.Refresh {
		resolve = e.resolver.Refresh
	}
	rec := resolve(context.Background(), r.Reference, filter, uid)
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{Indent: "  "}, os.Stdout, rec)
}
