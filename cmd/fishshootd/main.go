package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fishshoot.dev/server/audit"
	"fishshoot.dev/server/server"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opts, cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if opts.ShowVersion {
		fmt.Printf("fishshootd version %s\n", version)
		return nil
	}

	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := initLogRotator(opts.logDir()); err != nil {
		return err
	}
	defer logRotator.Close()
	setLogLevels(opts.DebugLevel)

	mainLog.Infof("fishshootd version %s starting", version)

	store, err := audit.OpenStore(opts.auditDB())
	if err != nil {
		return err
	}
	defer store.Close()

	// Resume the rules revision across restarts so receipts keep citing
	// a monotonically increasing version.
	stored, found, err := store.LoadRules()
	if err != nil {
		return err
	}
	var registry *audit.Registry
	if found {
		registry, err = audit.ResumeRegistry(cfg, stored)
	} else {
		registry, err = audit.NewRegistry(cfg)
	}
	if err != nil {
		return err
	}
	live := registry.Current()
	if err := store.SaveRules(live); err != nil {
		return err
	}
	mainLog.Infof("rules version %d hash %x", live.Version, live.Hash[:8])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pg *audit.PGSink
	if opts.PostgresDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err = audit.ConnectPG(connectCtx, opts.PostgresDSN)
		cancel()
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			return err
		}
		mainLog.Infof("postgres receipt mirror connected")
	}

	sink := newMirrorSink(store, pg)
	defer sink.Close()

	srv := server.New(cfg, live, sink)
	defer srv.Close()

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.Listen, err)
	}
	mainLog.Infof("listening for game clients on %s", ln.Addr())
	serveErr := make(chan error, 2)
	go func() { serveErr <- srv.Serve(ln) }()

	var httpSrv *http.Server
	if opts.WSListen != "" {
		httpSrv = &http.Server{
			Addr:              opts.WSListen,
			Handler:           srv.WSHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		mainLog.Infof("listening for websocket clients on %s", opts.WSListen)
		go func() { serveErr <- httpSrv.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
		mainLog.Infof("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			mainLog.Errorf("serve: %v", err)
		}
	}

	ln.Close()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	srv.Close()
	mainLog.Infof("fishshootd stopped")
	return nil
}
