package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/email"
	"github.com/fedinode/fedinode/feed"
	"github.com/fedinode/fedinode/internal/group"
	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/safehttp"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/wellknown"
	"github.com/fedinode/fedinode/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type ServeCmd struct {
	Addr string `help:"address to listen, overrides the configuration file"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	env, err := ctx.env()
	if err != nil {
		return err
	}
	addr := env.Config.Listen
	if s.Addr != "" {
		addr = s.Addr
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	e := newEngine(env, m, true)
	defer e.wait()

	envFn := func(r *http.Request) *models.Env {
		return env
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/host-meta", httpx.HandlerFunc(envFn, wellknown.HostMeta))
		r.Get("/host-meta.json", httpx.HandlerFunc(envFn, wellknown.HostMeta))
		r.Get("/webfinger", httpx.HandlerFunc(envFn, wellknown.Webfinger))
		r.Get("/nodeinfo", httpx.HandlerFunc(envFn, wellknown.NodeInfoIndex))
	})
	r.Get("/nodeinfo/{version}", httpx.HandlerFunc(envFn, wellknown.NodeInfoShow))
	r.Get("/noscrape/{nick}", httpx.HandlerFunc(envFn, wellknown.Noscrape))
	r.Get("/hcard/{nick}", httpx.HandlerFunc(envFn, wellknown.HCard))
	r.Get("/feed/{nick}", httpx.HandlerFunc(envFn, feed.Show))
	r.Post("/dfrn_notify/{nick}", httpx.HandlerFunc(envFn, (&dfrn.Inbox{Relay: e.notifier}).Notify))
	r.Handle("/metrics", metrics.Handler(reg))

	r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "User-agent: *\nDisallow: /dfrn_notify/\n")
	})

	walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		route = strings.Replace(route, "/*/", "/", -1)
		env.Log().Debug("route", "method", method, "route", route)
		return nil
	}
	if err := chi.Walk(r, walkFunc); err != nil {
		env.Log().Error("walk routes", "err", err)
	}

	svr := &http.Server{
		Addr:         addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g := group.New(sigCtx, env.Log())
	g.Go("http", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			env.Log().Info("stopping http server")
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(shutdown)
		}()
		env.Log().Info("http server listening", "addr", svr.Addr)
		if err := svr.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	cfg := env.Config
	client := safehttp.NewClient(cfg.Delivery.Timeout, cfg.Resolver.AllowPrivateNetworks)
	mailer := &email.SMTP{Addr: cfg.Mail.SMTPAddr, Username: cfg.Mail.Username, Password: cfg.Mail.Password}
	g.Go("retry", workers.NewRetryProcessor(workers.NewRetrier(env, client, mailer, m), cfg.Workers.Retry))
	g.Go("refresh", workers.NewContactRefreshProcessor(workers.NewRefresher(env, e.resolver), cfg.Workers.Refresh))
	g.Go("sweep", workers.NewDeliverySweepProcessor(workers.NewSweeper(env, e.executor), cfg.Workers.Sweep))

	return g.Wait()
}
