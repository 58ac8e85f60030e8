package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/addis-traffic/sumo-bridge/mocksim"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8813", "address to listen on")
	vehicles := flag.Int("vehicles", 10, "size of the simulated fleet")
	flag.Parse()

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mocksim.NewServer(mocksim.NewWorld(*vehicles))
	go func() {
		if err := srv.Start(*addr); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("Error starting mock simulator", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down mock simulator")
	if err := srv.Shutdown(); err != nil {
		slog.Error("Error shutting down mock simulator", "error", err.Error())
	}
}
