package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatrelay/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as TOML and exit")
	flag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		data, err := server.ExampleConfig(*config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(data)
		return
	}

	logger := server.NewLogger(config.LogLevel, os.Stdout)
	relay := server.NewServer(config, logger)

	listener, err := net.Listen("tcp", config.Addr())
	if err != nil {
		logger.Fatal().Err(err).Str("addr", config.Addr()).Msg("Unable to listen")
	}
	fmt.Printf("Server listening on %s. Type exit to stop.\n", config.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- relay.Serve(listener)
	}()

	var httpServer *http.Server
	if config.HTTPAddr != "" {
		httpServer = server.CreateServer(config.HTTPAddr, server.SetupRoutes(relay))
		go func() {
			if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP gateway stopped")
			}
		}()
	}

	go func() {
		err := server.RunConsole(ctx, os.Stdin, os.Stdout, relay)
		switch {
		case err == nil:
			stop()
		case errors.Is(err, server.ErrConsoleClosed):
			logger.Info().Msg("Operator console closed; relay keeps running until signalled")
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, server.ErrServerClosed) {
			logger.Error().Err(err).Msg("Accept loop failed")
		}
	}

	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, config.ShutdownTimeout, logger)
	}
	if err := relay.Shutdown(config.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("Relay did not stop cleanly")
	}
}
