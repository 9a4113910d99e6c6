package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/C0neF/gomoku-project/internal/config"
	"github.com/C0neF/gomoku-project/internal/session"
	"github.com/C0neF/gomoku-project/internal/sigclient"
	"github.com/C0neF/gomoku-project/internal/ui"
	"github.com/C0neF/gomoku-project/internal/webrtc"
)

const shutdownWait = 2 * time.Second

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigPath: flagConfig,
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func transportFactory(ice webrtc.ICEConfig) session.TransportFactory {
	return func(host bool) (webrtc.Transport, error) {
		t, err := webrtc.NewPionTransport(ice, host)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// runSession connects to signaling, hosts a room when roomID is empty or
// joins it otherwise, and runs the game screen until the player quits.
func runSession(ctx context.Context, roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println()
	if cfg.ForceRelay {
		ui.PrintInfo("Relay mode: game traffic goes through TURN")
	}
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	sig, err := sigclient.Dial(dialCtx, cfg.WebSocketURL(), webrtc.ClientTypeCLI)
	cancel()
	stopSpinner()
	if err != nil {
		return session.WrapError(session.SignalingUnavailable, "connect to server", err, cfg.WebSocketURL())
	}
	defer sig.Close()

	mgr := session.NewManager(session.Config{
		Signaler:           sig,
		NewTransport:       transportFactory(cfg.ICE()),
		NegotiationTimeout: cfg.NegotiationTimeout,
		RequestTimeout:     cfg.RequestTimeout,
		AssignFallback:     cfg.AssignFallback,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	if roomID == "" {
		mgr.CreateRoom()
	} else {
		mgr.JoinRoom(roomID)
	}

	score, uiErr := ui.Run(mgr, mgr.Events(), rootCmd.Name())
	mgr.Disconnect()
	go func() {
		for range mgr.Events() {
		}
	}()

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("session ended", "error", err)
		}
	case <-time.After(shutdownWait):
		slog.Warn("session did not stop in time")
	}

	if table := score.Render(); table != "" {
		fmt.Println(table)
	} else if uiErr == nil {
		ui.PrintWarning("No rounds finished")
	}
	return uiErr
}
