package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/tsawler/go-train/training"
)

// StreamConfig describes a socket.io endpoint that receives epoch results
type StreamConfig struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// eventSink is the part of a socket.io connection the streamer uses
type eventSink interface {
	emit(event string, payload any)
	close()
}

type dialFunc func(ctx context.Context, cfg StreamConfig, logger *slog.Logger) (eventSink, error)

// SocketIOStreamer pushes every epoch result to a socket.io server. A
// server that cannot be reached disables streaming for the run instead of
// failing it.
type SocketIOStreamer struct {
	cfg    StreamConfig
	logger *slog.Logger
	dial   dialFunc
	sink   eventSink
	last   int
}

// NewSocketIOStreamer validates cfg. The connection is made on train begin.
func NewSocketIOStreamer(cfg StreamConfig, logger *slog.Logger) (*SocketIOStreamer, error) {
	if cfg.URL == "" {
		return nil, errors.New("socket.io URL cannot be empty")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid socket.io URL %q: %w", cfg.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("socket.io URL %q needs a scheme and host", cfg.URL)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.Event == "" {
		cfg.Event = "epoch"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketIOStreamer{
		cfg:    cfg,
		logger: logger.With("url", cfg.URL, "namespace", cfg.Namespace),
		dial:   dialSocketIO,
	}, nil
}

func (s *SocketIOStreamer) Name() string { return "socketio" }

// Connected reports whether epoch results are being streamed
func (s *SocketIOStreamer) Connected() bool { return s.sink != nil }

func (s *SocketIOStreamer) OnTrainBegin() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	sink, err := s.dial(ctx, s.cfg, s.logger)
	if err != nil {
		s.logger.Warn("Streaming disabled", "error", err)
		return nil
	}
	s.sink = sink
	return nil
}

func (s *SocketIOStreamer) OnEpochEnd(info *training.EpochInfo) error {
	if s.sink == nil || info.Result == nil {
		return nil
	}
	s.last = info.Result.Epoch
	s.sink.emit(s.cfg.Event, epochPayload(info.Result))
	return nil
}

func (s *SocketIOStreamer) OnTrainEnd() error {
	if s.sink == nil {
		return nil
	}
	s.sink.emit("training_complete", map[string]any{"last_epoch": s.last})
	s.sink.close()
	s.sink = nil
	return nil
}

func epochPayload(r *training.EpochResult) map[string]any {
	metrics := make(map[string]any, len(r.Metrics))
	for k, v := range r.Metrics {
		metrics[k] = v
	}
	return map[string]any{
		"epoch":         r.Epoch,
		"learning_rate": r.LearningRate,
		"duration_ms":   r.Duration.Milliseconds(),
		"metrics":       metrics,
	}
}

type socketSink struct {
	io *socket.Socket
}

func (s *socketSink) emit(event string, payload any) {
	s.io.Emit(event, payload)
}

func (s *socketSink) close() {
	s.io.Disconnect()
}

func dialSocketIO(ctx context.Context, cfg StreamConfig, logger *slog.Logger) (eventSink, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 2)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Streaming connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &socketSink{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.Timeout)
	}
}
