package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/chatrelay/internal/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "Relay address (host:port)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to connect")
	}
	defer c.Close()

	if err := client.Run(ctx, c, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Connection lost")
	}
}
