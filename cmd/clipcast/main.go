package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipcast.systems/clipcast/internal/adapters"
	"clipcast.systems/clipcast/internal/browser"
	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/config"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
	"clipcast.systems/clipcast/internal/pipeline"
	"clipcast.systems/clipcast/internal/resolver"
	"clipcast.systems/clipcast/internal/scheduler"
	"clipcast.systems/clipcast/internal/sweeper"
	"clipcast.systems/clipcast/internal/web"
)

// drainTimeout bounds graceful shutdown: HTTP requests and background job
// stages both get this long to finish before being cancelled.
const drainTimeout = 10 * time.Second

// scrapePages and probePages adapt the concrete browser to the page
// interfaces the scrape adapters and the resolver consume.
type scrapePages struct{ b *browser.Browser }

func (s scrapePages) AcquirePage(ctx context.Context) (adapters.Page, error) {
	return s.b.AcquirePage(ctx)
}

type probePages struct{ b *browser.Browser }

func (s probePages) AcquirePage(ctx context.Context) (resolver.Page, error) {
	return s.b.AcquirePage(ctx)
}

func buildAdapters(cfg *config.Config, creds *config.Credentials, br *browser.Browser) []catalog.Adapter {
	client := adapters.NewClient(cfg.UserAgent)

	var list []catalog.Adapter
	if cfg.TwitchEnabled {
		list = append(list, adapters.NewTwitchAdapter(client, creds.Twitch.ClientID, creds.Twitch.ClientSecret))
	}
	if cfg.PartiEnabled {
		list = append(list, adapters.NewPartiAdapter(client))
	}
	if cfg.DliveEnabled {
		list = append(list, adapters.NewDliveAdapter(client))
	}
	if cfg.TrovoEnabled {
		list = append(list, adapters.NewTrovoAdapter(client, creds.Trovo.ClientID))
	}
	if cfg.KickEnabled {
		list = append(list, adapters.NewKickAdapter(scrapePages{br}))
	}
	if cfg.YoutubeEnabled {
		list = append(list, adapters.NewYoutubeAdapter(scrapePages{br}))
	}
	return list
}

func buildRoster(cfg *config.Config, creds *config.Credentials) map[catalog.Platform][]string {
	roster := make(map[catalog.Platform][]string)
	for name, refs := range creds.Roster {
		platform := catalog.Platform(strings.ToLower(name))
		if !platform.Valid() {
			slog.Warn("Ignoring roster entry for unknown platform", "platform", name)
			continue
		}
		if !cfg.Enabled(string(platform)) {
			slog.Info("Platform disabled, skipping roster entries", "platform", platform, "refs", len(refs))
			continue
		}
		roster[platform] = refs
	}
	return roster
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	log := slog.Default()

	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		log.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{cfg.TempDir(), cfg.ClipsDir(), cfg.ThumbnailsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	store := catalog.NewStore(cfg.CatalogPath())
	if err := store.Open(); err != nil {
		log.Warn("could not load persisted catalog, starting empty", "error", err)
	}

	br := browser.New(browser.Options{
		ExecPath:  cfg.ChromePath,
		UserAgent: cfg.UserAgent,
	})

	bus := events.NewBus()
	registry := jobs.NewRegistry(bus)

	aggregator := catalog.NewAggregator(store, buildAdapters(cfg, creds, br), buildRoster(cfg, creds),
		func(snap *catalog.Snapshot) {
			bus.Publish(events.Event{Kind: events.KindCatalogSnapshot, Payload: snap})
		})

	res := resolver.New(store, probePages{br})
	pipe := pipeline.New(cfg, registry, res, bus, log)
	gc := sweeper.New(cfg, registry, log)

	go scheduler.New(aggregator, gc, cfg.RefreshInterval(), log).Run(ctx)

	// Jobs spawned from requests outlive the request; they are cut only
	// after the shutdown drain window.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	srv := web.NewServer(jobCtx, cfg, store, aggregator, registry, pipe, bus, log)

	// Start unblocks as soon as Shutdown begins; main must wait for the
	// drain goroutine to finish before returning, or in-flight jobs and the
	// browser get no teardown.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("Shutting down: draining in-flight jobs")
		srv.StopAccepting()

		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		_ = srv.Shutdown(drainCtx)
		awaitJobDrain(drainCtx, registry)

		cancelJobs()
		br.Close()
	}()

	addr := ":" + strconv.Itoa(cfg.Port)
	log.Info("Listening", "addr", addr)
	err = srv.Start(addr)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return
	}
	log.Error("server failed", "error", err)
	os.Exit(1)
}

// awaitJobDrain waits for in-flight jobs to reach a terminal state, up to
// the drain deadline. Background captures hold no HTTP request open, so the
// server drain alone does not cover them.
func awaitJobDrain(ctx context.Context, registry *jobs.Registry) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		active := false
		for _, j := range registry.List() {
			if !j.State.Terminal() {
				active = true
				break
			}
		}
		if !active {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
