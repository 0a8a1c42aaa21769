package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/discordant/pkg/bridge"
	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/config"
	"github.com/sipeed/discordant/pkg/console"
	"github.com/sipeed/discordant/pkg/consumer"
	"github.com/sipeed/discordant/pkg/decode"
	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/fetch"
	"github.com/sipeed/discordant/pkg/logger"
)

// intents covers every event the bridge handles. Members, presences and
// message content are privileged and must be enabled for the application.
const intents = discordgo.IntentsAllWithoutPrivileged |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsMessageContent

// errOperatorQuit stops the group when the console asks to quit.
var errOperatorQuit = errors.New("operator quit")

type pipeline struct {
	bus      *bus.MessageBus
	bridge   *bridge.Bridge
	fetcher  *fetch.Dispatcher
	consumer *consumer.Consumer
}

// newPipeline wires the bus and the three execution contexts around dir.
func newPipeline(cfg *config.Config, dir bridge.Directory, sink consumer.Sink) *pipeline {
	mb := bus.NewMessageBus(cfg.QueueCapacity)
	return &pipeline{
		bus:     mb,
		bridge:  bridge.New(mb, dir, bridge.WithMemberLimit(cfg.MemberLimit)),
		fetcher: fetch.New(mb, fetch.WithTimeout(cfg.FetchTimeout)),
		consumer: consumer.New(mb, decode.NewDecoder(decode.NewWebP()), sink,
			consumer.WithAwaitTimeout(cfg.AwaitTimeout),
			consumer.WithMaxInFlight(cfg.ImageFetches),
		),
	}
}

// newRouter is the headless sink: every event and image is logged, and cache
// readiness is reported once per session.
func newRouter() *consumer.Router {
	r := consumer.NewRouter()
	r.Use(consumer.LogSink{})
	r.On(events.KindCacheReady, func(msg events.Message) {
		logger.InfoCF("main", "Guild cache ready", map[string]interface{}{
			"guilds": len(msg.(events.CacheReady).GuildIDs),
		})
	})
	return r
}

func run(ctx context.Context, flags rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.noConsole {
		cfg.Console = false
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	defer logger.Sync()

	session, err := discordgo.New(cfg.Token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = intents
	dir := &bridge.SessionDirectory{S: session}

	p := newPipeline(cfg, dir, newRouter())
	defer p.bus.Close()

	p.bridge.Register(session)
	defer p.bridge.Unregister()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.fetcher.Run(gctx) })
	g.Go(func() error { return p.consumer.Run(gctx) })
	g.Go(func() error {
		select {
		case err := <-p.bridge.Fatal():
			return fmt.Errorf("bridge: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		if err := p.consumer.WaitReady(gctx); err != nil {
			return nil
		}
		logger.InfoCF("main", "Initialization complete", map[string]interface{}{
			"bridge": p.bridge.Stats(),
		})
		return nil
	})

	if cfg.Console {
		con := console.New(dir, p.bus,
			console.WithStats("bridge", func() interface{} { return p.bridge.Stats() }),
			console.WithStats("fetch", func() interface{} { return p.fetcher.Stats() }),
			console.WithStats("consumer", func() interface{} { return p.consumer.Stats() }),
		)
		g.Go(func() error {
			if err := con.Run(gctx); errors.Is(err, console.ErrQuit) {
				return errOperatorQuit
			} else if err != nil {
				return err
			}
			return nil
		})
	}

	logger.InfoC("main", "Opening gateway session")
	if err := session.Open(); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("open session: %w", err)
	}

	err = g.Wait()
	logger.InfoC("main", "Shutting down")
	if cerr := session.Close(); cerr != nil {
		logger.WarnCF("main", "Session close failed", map[string]interface{}{
			"error": cerr.Error(),
		})
	}

	if err == nil || errors.Is(err, errOperatorQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
