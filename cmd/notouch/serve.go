package main

import (
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/notouch/internal/config"
	"github.com/scrypster/notouch/internal/server"
	"github.com/scrypster/notouch/internal/services"
	"github.com/scrypster/notouch/internal/storage/memory"
	"github.com/scrypster/notouch/web/handlers"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the device HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("Error closing repository: %v", err)
		}
	}()

	fe, client, err := buildExtractor(cfg)
	if err != nil {
		return err
	}
	_ = checkModelServer(ctx, cfg, client)

	// The hub is both the device's UI sink and the /ws endpoint.
	hub := handlers.NewWebSocketHub(
		net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		net.JoinHostPort("localhost", strconv.Itoa(cfg.Server.Port)),
	)

	// The action reports completion to the device, which is created after it.
	var device *services.Device
	action, closeAction, err := buildAlertAction(cfg, func() {
		if device != nil {
			device.ActionFinished()
		}
	})
	if err != nil {
		return err
	}
	defer closeAction()

	device, err = services.NewDevice(deviceConfig(cfg), services.DeviceDeps{
		Store:      memory.NewExampleStore(),
		Repository: repo,
		Source:     buildFrameSource(cfg),
		Extractor:  fe,
		Action:     action,
		Sink:       hub,
	})
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	defer device.Shutdown()

	if _, err := device.LoadExamples(ctx); err != nil {
		return err
	}

	addr, err := server.Start(ctx, cfg, device, hub)
	if err != nil {
		return err
	}
	log.Printf("notouch %s listening on http://%s (storage=%s, action=%s)",
		version, addr, cfg.Storage.Engine, cfg.Alert.Action)

	<-ctx.Done()
	log.Println("Shutting down gracefully...")
	return nil
}
