// Command peertag-selfplay plays two autopiloted sessions against each other
// and prints the score. With --transport webrtc it starts a rendezvous
// server in process and connects the two sides over real data channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"peertag/applog"
	"peertag/loopback"
	"peertag/rendezvous"
	"peertag/session"
	"peertag/transport"
	"peertag/webrtc"
	"peertag/world"
	"syscall"
	"time"
)

type config struct {
	Transport string
	Duration  time.Duration
	TickRate  int
	Seed      uint64
	LogLevel  int
	LogPath   string
}

func parseFlags() config {
	var (
		transportName = flag.String("transport", "loopback", "Either 'loopback' or 'webrtc'")
		duration      = flag.Duration("duration", 30*time.Second, "How long to play")
		tickRate      = flag.Int("tick-rate", 60, "Simulation ticks per second")
		seed          = flag.Uint64("seed", 0, "Autopilot seed, random when zero")
		logLevel      = flag.Int("log-level", 0, "Log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error")
		logPath       = flag.String("log-path", "", "Directory to the logs")
	)
	flag.Parse()

	cfg := config{
		Transport: *transportName,
		Duration:  *duration,
		TickRate:  *tickRate,
		Seed:      *seed,
		LogLevel:  *logLevel,
		LogPath:   *logPath,
	}
	if cfg.Transport != "loopback" && cfg.Transport != "webrtc" {
		_, _ = fmt.Fprintf(os.Stderr, "Unknown transport %q\n", cfg.Transport)
		os.Exit(2)
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	return cfg
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	if err := applog.Initialize("selfplay", "selfplay", cfg.LogLevel, cfg.LogPath); err != nil {
		fmt.Printf("Failed to initialize app logger: %v\n", err)
	}
	defer applog.Shutdown()
	applog.LogStartupInfo(cfg)

	factory, cleanup, err := newFactory(ctx, cfg.Transport)
	if err != nil {
		applog.Error("Failed to prepare transport", zap.Error(err))
		return
	}
	defer cleanup()

	host := newPlayer(ctx, factory, cfg, "host", "Alice", 0)
	joiner := newPlayer(ctx, factory, cfg, "joiner", "Bob", 1)
	loops := []*session.Loop{host, joiner}

	// The loops outlive ctx until the scores have been read.
	runCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	g, gctx := errgroup.WithContext(runCtx)
	for _, l := range loops {
		g.Go(func() error { return l.Run(gctx) })
	}

	host.Do(func(s *session.Session) {
		if err := s.CreateRoom("selfplay"); err != nil {
			applog.Error("Failed to create room", zap.Error(err))
		}
	})
	joiner.Do(func(s *session.Session) {
		if err := s.JoinRoom("selfplay"); err != nil {
			applog.Error("Failed to join room", zap.Error(err))
		}
	})

	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}

	for _, l := range loops {
		line := make(chan string, 1)
		if !l.Do(func(s *session.Session) {
			local, remote := s.Scores()
			line <- fmt.Sprintf("%s (%s): %d, opponent %s: %d",
				s.Username(), s.Team(), local, s.RemoteUsername(), remote)
		}) {
			continue
		}
		select {
		case text := <-line:
			fmt.Println(text)
		case <-time.After(time.Second):
		}
	}

	stopLoops()
	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		applog.Error("Self play stopped", zap.Error(err))
	}
}

func newPlayer(ctx context.Context, factory transport.PeerFactory, cfg config, id, name string, stream uint64) *session.Loop {
	sc := session.DefaultConfig()
	sc.LocalID = id
	sc.Username = name
	sc.World = world.NewArena(world.DefaultSeed)

	s := session.New(ctx, sc, factory, session.LogDisplay{Logger: applog.GetLogger()})
	pilot := session.NewAutopilotController(rand.New(rand.NewPCG(cfg.Seed, stream)), 2*time.Second)
	return session.NewLoop(s, cfg.TickRate, pilot)
}

func newFactory(ctx context.Context, name string) (transport.PeerFactory, func(), error) {
	if name == "loopback" {
		return loopback.NewNetwork(), func() {}, nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}

	srv := rendezvous.NewServer(rendezvous.Config{}, applog.GetLogger())
	httpServer := &http.Server{Handler: srv.Routes()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("Rendezvous server stopped", zap.Error(err))
		}
	}()

	factory := webrtc.NewFactory(context.WithoutCancel(ctx), "http://"+listener.Addr().String(), false)
	cleanup := func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = factory.Wait(waitCtx)
		_ = httpServer.Shutdown(waitCtx)
	}
	return factory, cleanup, nil
}
