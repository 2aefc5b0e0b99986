// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command rouse runs the alerting engine: the HTTP API, the escalation and
// notification workers, and the configuration coordinator, all over one
// SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/coder/quartz"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promslog"
	promslogflag "github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"

	"github.com/rouselabs/rouse/alerts"
	"github.com/rouselabs/rouse/api"
	"github.com/rouselabs/rouse/config"
	"github.com/rouselabs/rouse/dispatch"
	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/noise"
	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/notify/email"
	"github.com/rouselabs/rouse/notify/logmsg"
	"github.com/rouselabs/rouse/notify/slack"
	"github.com/rouselabs/rouse/notify/sns"
	"github.com/rouselabs/rouse/notify/telegram"
	"github.com/rouselabs/rouse/notify/webhook"
	"github.com/rouselabs/rouse/parse"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/provider/sqlite"
	"github.com/rouselabs/rouse/schedule"
	"github.com/rouselabs/rouse/types"
	"github.com/rouselabs/rouse/worker"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var (
		configFile    = kingpin.Flag("config.file", "Rouse configuration file name.").Default("rouse.yml").String()
		storagePath   = kingpin.Flag("storage.path", "SQLite database file. Overrides data.path.").String()
		listenAddress = kingpin.Flag("web.listen-address", "Address to listen on for the API and metrics. Overrides server.listen_address.").String()
		dryRun        = kingpin.Flag("notify.dry-run", "Log notifications instead of delivering them.").Bool()
	)
	promslogConfig := &promslog.Config{}
	promslogflag.AddFlags(kingpin.CommandLine, promslogConfig)
	kingpin.CommandLine.UsageWriter(os.Stdout)
	kingpin.Version(version.Print("rouse"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := promslog.New(promslogConfig)
	logger.Info("Starting rouse", "version", version.Info())

	// The coordinator re-reads the file on SIGHUP, but the listener, the
	// database path, worker cadences, and receivers apply at startup only.
	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		logger.Error("Loading configuration file failed", "file", *configFile, "err", err)
		return 1
	}
	addr := cfg.Server.ListenAddress
	if *listenAddress != "" {
		addr = *listenAddress
	}
	dbPath := cfg.Data.Path
	if *storagePath != "" {
		dbPath = *storagePath
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("rouse"),
	)

	db, err := sqlite.Open(dbPath, logger)
	if err != nil {
		logger.Error("Opening database failed", "path", dbPath, "err", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifiers, err := buildNotifiers(ctx, cfg.Receivers, *dryRun, logger)
	if err != nil {
		logger.Error("Building channel notifiers failed", "err", err)
		return 1
	}

	clock := quartz.NewReal()
	scheduleSvc := schedule.NewService(db.Schedules, db.Events, logger)
	noiseSvc := noise.NewService(db.Noise, logger)
	router := dispatch.NewRouter(nil)
	alertSvc := alerts.NewService(db.Alerts, db.Policies, db.Escalations, db.Events, router, alerts.Options{
		Grouper: alerts.NewGrouper(db.Groups, time.Duration(cfg.Grouping.Window)),
		Noise:   noiseSvc,
	}, registry, logger)

	coordinator := config.NewCoordinator(*configFile, registry, logger)
	coordinator.Subscribe(func(c *config.Config) error {
		return applyConfig(ctx, c, db.Policies, scheduleSvc, router)
	})
	if err := coordinator.Reload(); err != nil {
		return 1
	}

	escWorker := worker.NewEscalation(
		db.Escalations, db.Notifications, db.Alerts, db.Policies, db.Users, db.Teams,
		scheduleSvc, db.Events, clock, time.Duration(cfg.Workers.EscalationInterval), registry, logger,
	)
	notifWorker := worker.NewNotification(
		db.Notifications, notify.NewRegistry(notifiers...), db.Events,
		clock, time.Duration(cfg.Workers.NotificationInterval), registry, logger,
	)

	parsers := parse.NewRegistry(parse.NewJSON("custom"), parse.NewAlertmanager("alertmanager"))
	a := api.New(alertSvc, scheduleSvc, noiseSvc, db.Policies, db.Users, db.Teams, db.Events, parsers, clock, logger)

	mux := http.NewServeMux()
	mux.Handle("/", a.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	var g run.Group
	{
		g.Add(func() error {
			logger.Info("Listening", "address", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown failed", "err", err)
			}
		})
	}
	{
		wctx, wcancel := context.WithCancel(ctx)
		g.Add(func() error {
			return escWorker.Run(wctx)
		}, func(error) {
			wcancel()
		})
	}
	{
		wctx, wcancel := context.WithCancel(ctx)
		g.Add(func() error {
			return notifWorker.Run(wctx)
		}, func(error) {
			wcancel()
		})
	}
	{
		term := make(chan os.Signal, 1)
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		cancelc := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-hup:
					// Reload failures keep the previous configuration.
					_ = coordinator.Reload()
				case sig := <-term:
					logger.Info("Received signal, exiting gracefully", "signal", sig.String())
					return nil
				case <-cancelc:
					return nil
				}
			}
		}, func(error) {
			close(cancelc)
		})
	}

	if err := g.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Terminated with error", "err", err)
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}

// applyConfig reconciles declared policies and schedules with the store and
// swaps the routing table. It runs on startup and on every reload.
func applyConfig(ctx context.Context, c *config.Config, policies provider.PolicyRepository, schedules *schedule.Service, router *dispatch.Router) error {
	policyIDs, err := provisionPolicies(ctx, policies, c.Policies)
	if err != nil {
		return err
	}
	if err := provisionSchedules(ctx, schedules, c.Schedules); err != nil {
		return err
	}

	routes := make([]dispatch.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		id, ok := policyIDs[rc.Policy]
		if !ok {
			return fmt.Errorf("route references undeclared policy %q", rc.Policy)
		}
		routes = append(routes, dispatch.Route{Matchers: rc.Matchers, PolicyID: id})
	}
	router.Update(routes)
	return nil
}

// provisionPolicies upserts declared policies by name and returns the
// name to id mapping for route construction. A policy that already exists
// keeps its id, so queued escalation steps stay valid across reloads.
func provisionPolicies(ctx context.Context, repo provider.PolicyRepository, cfgs []config.PolicyConfig) (map[string]types.PolicyID, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*escalation.Policy, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	ids := make(map[string]types.PolicyID, len(cfgs))
	for _, pc := range cfgs {
		steps, err := pc.Build()
		if err != nil {
			return nil, err
		}
		p, err := escalation.NewPolicy(pc.Name, steps, pc.RepeatCount)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", pc.Name, err)
		}
		if prev, ok := byName[pc.Name]; ok {
			p.ID = prev.ID
		}
		if err := repo.Save(ctx, p); err != nil {
			return nil, err
		}
		ids[pc.Name] = p.ID
	}
	return ids, nil
}

// provisionSchedules upserts declared schedules by name, keeping the id and
// overrides of already provisioned ones.
func provisionSchedules(ctx context.Context, svc *schedule.Service, cfgs []config.ScheduleConfig) error {
	existing, err := svc.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]*schedule.Schedule, len(existing))
	for _, s := range existing {
		byName[s.Name] = s
	}

	for _, sc := range cfgs {
		kind, period, err := sc.BuildRotation()
		if err != nil {
			return err
		}
		var rot schedule.Rotation
		switch kind {
		case "weekly":
			rot = schedule.Weekly()
		case "custom":
			rot = schedule.Custom(period)
		default:
			rot = schedule.Daily()
		}

		participants := make([]types.UserID, 0, len(sc.Participants))
		for _, p := range sc.Participants {
			id, err := types.ParseUserID(p)
			if err != nil {
				return fmt.Errorf("schedule %q participant %q: %w", sc.Name, p, err)
			}
			participants = append(participants, id)
		}

		s, err := schedule.New(sc.Name, sc.Timezone, rot, participants)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		if prev, ok := byName[sc.Name]; ok {
			s.ID = prev.ID
			s.Overrides = prev.Overrides
		}
		if err := svc.Upsert(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// buildNotifiers constructs one channel adapter per configured receiver.
// With dry run enabled every known channel logs instead of delivering.
func buildNotifiers(ctx context.Context, rc config.ReceiverConfig, dryRun bool, logger *slog.Logger) ([]notify.Notifier, error) {
	if dryRun {
		ns := make([]notify.Notifier, 0, len(types.Channels))
		for _, c := range types.Channels {
			ns = append(ns, logmsg.New(c, logger))
		}
		return ns, nil
	}

	var ns []notify.Notifier
	if rc.Slack != nil {
		ns = append(ns, slack.New(string(rc.Slack.Token), logger))
	}
	if rc.Telegram != nil {
		tg, err := telegram.New(string(rc.Telegram.Token), logger)
		if err != nil {
			return nil, fmt.Errorf("telegram receiver: %w", err)
		}
		ns = append(ns, tg)
	}
	if rc.Email != nil {
		ns = append(ns, email.New(email.Config{
			Host:     rc.Email.Host,
			Port:     rc.Email.Port,
			From:     rc.Email.From,
			Username: rc.Email.Username,
			Password: string(rc.Email.Password),
		}, logger))
	}
	if rc.SMS != nil {
		sms, err := sns.New(ctx, rc.SMS.Region, logger)
		if err != nil {
			return nil, fmt.Errorf("sms receiver: %w", err)
		}
		ns = append(ns, sms)
	}
	if rc.Webhook != nil {
		timeout := time.Duration(rc.Webhook.Timeout)
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		ns = append(ns, webhook.New(&http.Client{Timeout: timeout}, logger))
	}
	return ns, nil
}
