// Package transport serves assistant messages over NATS request/reply.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/assistant"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	errorParse    = "PARSE_ERROR"
	errorInternal = "INTERNAL_ERROR"
)

type MessageHandler interface {
	ReceiveMessage(ctx context.Context, msg assistant.Message) (*assistant.Turn, error)
}

// Reply is the response body for every request.
type Reply struct {
	Status       string          `json:"status"`
	Turn         *assistant.Turn `json:"turn,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type NATSTransport struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	cfg     config.NATSConfig
	handler MessageHandler
	logger  *zap.Logger
}

func NewNATSTransport(cfg config.NATSConfig, serviceName string, handler MessageHandler, logger *zap.Logger) (*NATSTransport, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(serviceName),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL))

	return &NATSTransport{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start subscribes in the configured queue group so replicas share the load.
func (t *NATSTransport) Start() error {
	sub, err := t.conn.QueueSubscribe(t.cfg.Subject, t.cfg.QueueGroup, t.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", t.cfg.Subject, err)
	}
	t.sub = sub

	t.logger.Info("subscribed to assistant messages",
		zap.String("subject", t.cfg.Subject),
		zap.String("queue_group", t.cfg.QueueGroup),
	)
	return nil
}

func (t *NATSTransport) handleRequest(msg *nats.Msg) {
	timeout := t.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply := process(ctx, t.handler, msg.Data)
	if reply.Status == StatusError {
		t.logger.Warn("assistant message failed",
			zap.String("error_code", reply.ErrorCode),
			zap.String("error", reply.ErrorMessage),
		)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		t.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		t.logger.Error("failed to send reply", zap.Error(err))
	}
}

// process decodes one request and runs it through the handler.
func process(ctx context.Context, handler MessageHandler, data []byte) Reply {
	var msg assistant.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{Status: StatusError, ErrorCode: errorParse, ErrorMessage: "invalid request format"}
	}

	turn, err := handler.ReceiveMessage(ctx, msg)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Status: StatusOK, Turn: turn}
}

func errorReply(err error) Reply {
	code := errorInternal
	if c, ok := apperrors.CodeOf(err); ok {
		code = string(c)
	}
	return Reply{Status: StatusError, ErrorCode: code, ErrorMessage: err.Error()}
}

func (t *NATSTransport) HealthCheck(ctx context.Context) error {
	if t.conn == nil || !t.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains the subscription so requests in flight are answered.
func (t *NATSTransport) Close() error {
	if t.sub != nil {
		if err := t.sub.Drain(); err != nil {
			t.logger.Warn("draining nats subscription", zap.Error(err))
		}
	}
	if t.conn != nil {
		t.conn.Close()
		t.logger.Info("nats connection closed")
	}
	return nil
}
