package main

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os/signal"
	"peertag/applog"
	"peertag/launcher"
	"peertag/rendezvous"
	"peertag/signaling"
	"peertag/util"
	"syscall"
	"time"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := launcher.LoadEnv(); err != nil {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	info := launcher.NewServerInfoFromFlags()
	err := applog.Initialize("rendezvous", "", info.LogLevel, info.LogPath)
	if err != nil {
		fmt.Printf("Failed to initialize app logger: %v\n", err)
	}

	defer applog.Shutdown()
	defer util.WrapAppContextCancelExitMessage(ctx, "Rendezvous")

	if err = info.Validate(); err != nil {
		applog.Error("Failed to validate command line arguments", zap.Error(err))
		return
	}

	applog.LogStartupInfo(info)

	srv := rendezvous.NewServer(rendezvous.Config{
		IceServers: iceServers(info),
		ForceRelay: info.ForceTurnRelay,
		StaleAfter: info.StaleAfter,
	}, applog.GetLogger())

	httpServer := &http.Server{
		Addr:              info.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		applog.Info("Rendezvous listening", zap.String("addr", info.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		applog.Error("Rendezvous stopped", zap.Error(err))
	}
}

func iceServers(info *launcher.ServerInfo) []signaling.IceServersResponseServer {
	var servers []signaling.IceServersResponseServer
	if len(info.StunUrls) > 0 {
		servers = append(servers, signaling.IceServersResponseServer{
			Id:   "stun",
			Urls: info.StunUrls,
		})
	}
	if len(info.TurnUrls) > 0 {
		servers = append(servers, signaling.IceServersResponseServer{
			Id:         "turn",
			Username:   info.TurnUsername,
			Credential: info.TurnCredential,
			Urls:       info.TurnUrls,
		})
	}
	return servers
}
