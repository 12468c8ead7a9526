// Command h2gate runs a standalone HTTP/1.1 and HTTP/2 gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbergstrom/h2gate/internal/config"
	"github.com/kbergstrom/h2gate/pkg/h2gate"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	res, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("h2gate: %w", err)
	}

	router := h2gate.NewRouter()
	router.Use(
		h2gate.Recovery(),
		h2gate.LoggerWithConfig(h2gate.LoggerConfig{Format: res.LogFormat}),
		h2gate.RequestID(),
	)
	if res.HandlerTTL > 0 {
		router.Use(h2gate.Timeout(res.HandlerTTL))
	}
	router.Use(h2gate.Health(), h2gate.Prometheus())

	router.GET("/", func(ctx *h2gate.Context) error {
		return ctx.JSON(200, map[string]string{"service": "h2gate", "status": "running"})
	})

	server := h2gate.New(res.Server)

	errCh := make(chan error, 1)
	go func() {
		res.Server.Logger.Printf("h2gate listening on %s (tls=%v)", res.Server.Addr, res.Server.TLSEnabled)
		errCh <- server.ListenAndServe(router)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("h2gate: server error: %w", err)
		}
		return nil
	case <-sig:
		res.Server.Logger.Printf("h2gate shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}
