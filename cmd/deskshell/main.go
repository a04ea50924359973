package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/config"
	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/server"
)

func main() {
	configFile := flag.String("config", "", "Path to the servers config file (overrides env)")
	port := flag.String("port", "", "RPC listen port (overrides env)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *configFile != "" {
		cfg.Servers.ConfigFile = *configFile
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log = logging.NewDefault()
	}
	defer log.Sync()

	srv, err := server.NewServer(cfg, log, server.Options{})
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Info("shutting down")
		if err := srv.Close(); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		srv.Crash().HandleUncaught(err)
		log.Fatal("server error", zap.Error(err))
	}
}
