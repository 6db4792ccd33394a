package main

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"math/rand/v2"
	"os"
	"os/signal"
	"peertag/applog"
	"peertag/launcher"
	"peertag/session"
	"peertag/signaling"
	"peertag/util"
	"peertag/webrtc"
	"peertag/world"
	"syscall"
	"time"
)

const (
	shutdownGrace       = 5 * time.Second
	autopilotRestartGap = 2 * time.Second
)

func main() {
	if err := launcher.LoadEnv(); err != nil {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	info := launcher.NewInfoFromFlags()
	err := applog.Initialize(info.LocalId, info.RoomId, info.LogLevel, info.LogPath)
	if err != nil {
		fmt.Printf("Failed to initialize app logger: %v\n", err)
	}

	defer applog.Shutdown()
	defer util.WrapAppContextCancelExitMessage(ctx, "Peertag")

	if err = info.Validate(); err != nil {
		applog.Error("Failed to validate command line arguments", zap.Error(err))
		return
	}

	// If we agreed to share logs, ship them to the rendezvous service.
	if info.ConsentLogSharing {
		applog.NoRemote().Info("Log sharing are enabled")
		logClient := signaling.NewClient(info.ApiRoot, info.LocalId)
		defer logClient.Close()
		applog.SetRemoteLogSender(logClient)
	} else {
		applog.NoRemote().Info("Log sharing is not enabled")
	}

	applog.LogStartupInfo(info)

	if info.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, info.Duration)
		defer stop()
	}

	// Peers keep the network for a moment after ctx is done so they can
	// leave the rendezvous service.
	job := util.DelayedCancelContextWithJob(ctx, shutdownGrace)
	defer job.Done()

	factory := webrtc.NewFactory(job.Context(), info.ApiRoot, info.ForceTurnRelay)
	if err = run(ctx, info, factory); err != nil {
		applog.Error("Session stopped", zap.Error(err))
	}

	if err = factory.Wait(job.Context()); err != nil {
		applog.Warn("Peers did not finish closing", zap.Error(err))
	}
}

func run(ctx context.Context, info *launcher.Info, factory *webrtc.Factory) error {
	cfg := session.DefaultConfig()
	cfg.LocalID = info.LocalId
	cfg.Username = info.UserName
	cfg.World = world.NewArena(world.DefaultSeed)

	s := session.New(ctx, cfg, factory, session.LogDisplay{Logger: applog.GetLogger()})

	var controller session.Controller
	var keyboard *keyboardController
	if info.Autopilot {
		controller = session.NewAutopilotController(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), autopilotRestartGap)
	} else {
		keyboard = &keyboardController{}
		controller = keyboard
	}
	loop := session.NewLoop(s, info.TickRate, controller)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	startErr := make(chan error, 1)
	loop.Do(func(s *session.Session) {
		if info.Mode == launcher.ModeJoin {
			startErr <- s.JoinRoom(info.RoomId)
			return
		}
		startErr <- s.CreateRoom(info.RoomId)
	})

	g.Go(func() error {
		select {
		case err := <-startErr:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	// Stdin reads do not observe cancellation, so the reader stays outside
	// the group.
	if keyboard != nil {
		go func() {
			err := util.ReadCommands(gctx, os.Stdin, func(fields []string) {
				keyboard.handle(loop, fields)
			})
			if err != nil && gctx.Err() == nil {
				applog.Warn("Stopped reading commands", zap.Error(err))
			}
		}()
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
