package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/catalog"
	"github.com/sobremidia/player/internal/config"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/model"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 30 * time.Second
)

// Handler executes remote commands on behalf of the listener.
type Handler interface {
	// HandleReload nudges a sync cycle.
	HandleReload(ctx context.Context) error
	// HandleReboot restarts the runtime. It may not return.
	HandleReboot(ctx context.Context) error
	// HandleScreenshot captures the current frame and returns the uploaded
	// object path.
	HandleScreenshot(ctx context.Context) (string, error)
}

// Listener receives operator commands over the per-device push subject.
// Commands are pushed, never polled; a device at rest holds one idle
// subscription and zero request traffic.
type Listener struct {
	cfg        config.NATSConfig
	client     *catalog.Client
	handler    Handler
	deviceName string
	logger     *zap.Logger
}

// NewListener creates a command listener.
func NewListener(cfg config.NATSConfig, client *catalog.Client, handler Handler, deviceName string, logger *zap.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		client:     client,
		handler:    handler,
		deviceName: deviceName,
		logger:     logger.Named("commands"),
	}
}

// Run connects, subscribes and blocks until ctx is cancelled. Connection
// failures retry forever with capped exponential backoff; the push channel is
// optional equipment and its absence must never take playback down.
func (l *Listener) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := l.connectAndServe(ctx)
		if err == nil {
			return
		}
		attempt++
		delay := backoffDelay(attempt)
		l.logger.Warn("command channel connection failed",
			zap.Error(err),
			zap.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) connectAndServe(ctx context.Context) error {
	if err := l.ensureRegistered(ctx); err != nil {
		return err
	}

	conn, err := nats.Connect(l.cfg.URL,
		nats.Name("playerd-"+l.client.ScreenUUID()),
		nats.MaxReconnects(l.cfg.MaxReconnect),
		nats.ReconnectWait(l.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				l.logger.Error("command channel disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.logger.Info("command channel reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to command channel: %w", err)
	}
	defer conn.Close()

	subject := fmt.Sprintf("screens.%s.commands", l.client.ScreenUUID())
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		l.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	l.logger.Info("command subscription active", zap.String("subject", subject))

	<-ctx.Done()
	return nil
}

// ensureRegistered makes the device known to the catalog before it starts
// listening. An unknown device self-registers as pending approval so it
// appears in the operator dashboard on first boot.
func (l *Listener) ensureRegistered(ctx context.Context) error {
	_, err := l.client.FindScreen(ctx)
	if err == nil {
		return nil
	}
	if !errors.IsNotFound(err) {
		return err
	}

	l.logger.Info("device unknown to catalog, self-registering")
	return l.client.RegisterScreen(ctx, l.deviceName)
}

func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	var cmd model.RemoteCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		l.logger.Error("malformed command packet", zap.ByteString("data", data), zap.Error(err))
		return
	}
	if cmd.ID == "" || cmd.Command == "" {
		l.logger.Error("command packet missing id or command", zap.ByteString("data", data))
		return
	}

	l.logger.Info("command received",
		zap.String("command_id", cmd.ID),
		zap.String("command", string(cmd.Command)),
	)

	switch cmd.Command {
	case model.CommandReload:
		l.finish(ctx, cmd, l.handler.HandleReload(ctx))
		l.client.ReportScreenAction(ctx, "Reload", cmd.ID)

	case model.CommandReboot:
		// Acknowledge first: the handler restarts the process and a reboot
		// that works would otherwise stay pending forever.
		l.client.AcknowledgeCommand(ctx, cmd.ID, "executed")
		if err := l.handler.HandleReboot(ctx); err != nil {
			l.logger.Error("reboot command failed", zap.Error(err))
		}

	case model.CommandScreenshot:
		objectPath, err := l.handler.HandleScreenshot(ctx)
		if err == nil {
			l.client.RecordScreenshot(ctx, objectPath, "remote")
		}
		l.finish(ctx, cmd, err)

	default:
		l.logger.Warn("unknown command ignored", zap.String("command", string(cmd.Command)))
		l.client.AcknowledgeCommand(ctx, cmd.ID, "unsupported")
	}
}

func (l *Listener) finish(ctx context.Context, cmd model.RemoteCommand, err error) {
	if err != nil {
		l.logger.Error("command execution failed",
			zap.String("command_id", cmd.ID),
			zap.Error(err),
		)
		l.client.AcknowledgeCommand(ctx, cmd.ID, "failed")
		return
	}
	l.client.AcknowledgeCommand(ctx, cmd.ID, "executed")
}

// backoffDelay returns the wait before reconnection attempt n (1-based),
// doubling from 5s up to a 30s ceiling.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
