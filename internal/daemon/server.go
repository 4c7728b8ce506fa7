// Package daemon implements the long-running host loop that serves the
// dispatcher over newline-delimited JSON.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/dispatch"
	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Dispatcher runs one host command.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, payload []byte) ([]byte, error)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	MaxLineSize       int           // Largest accepted request line in bytes
	HeartbeatInterval time.Duration // How often to log liveness and in-flight count
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxLineSize:       1 << 20,
		HeartbeatInterval: 60 * time.Second,
	}
}

// Server reads dispatch.Request lines from in and writes dispatch.Response
// lines to out. Requests run concurrently, so a pending permission request
// does not hold up later lines; responses may arrive out of order and are
// matched by ID.
type Server struct {
	config     ServerConfig
	dispatcher Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *zap.Logger

	writeMu  sync.Mutex
	stopped  bool // guarded by writeMu
	inflight sync.WaitGroup
	active   atomic.Int64
}

// NewServer creates a new server. Non-positive config values take their
// defaults.
func NewServer(config ServerConfig, dispatcher Dispatcher, in io.Reader, out io.Writer, logger *zap.Logger) *Server {
	defaults := DefaultServerConfig()
	if config.MaxLineSize <= 0 {
		config.MaxLineSize = defaults.MaxLineSize
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		in:         in,
		out:        out,
		logger:     logger,
	}
}

// Run serves requests until in reaches EOF or ctx is canceled. On EOF it
// waits for in-flight requests to answer. On cancellation it returns at
// once; consent waits cannot be abandoned, so their answers are dropped and
// nothing is written to out after Run returns.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go s.read(ctx, lines, readErr)

	s.logger.Info("server started")

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.logger.Info("server stopping", zap.Int64("in_flight", s.active.Load()))
			return ctx.Err()

		case <-heartbeat.C:
			s.logger.Debug("server heartbeat", zap.Int64("in_flight", s.active.Load()))

		case line := <-lines:
			s.inflight.Add(1)
			s.active.Add(1)
			go func() {
				defer s.inflight.Done()
				defer s.active.Add(-1)
				s.handle(ctx, line)
			}()

		case err := <-readErr:
			s.inflight.Wait()
			if err != nil {
				s.logger.Error("input failed", zap.Error(err))
				return err
			}
			s.logger.Info("input closed, server stopped")
			return nil
		}
	}
}

func (s *Server) read(ctx context.Context, lines chan<- []byte, readErr chan<- error) {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.config.MaxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		select {
		case lines <- buf:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		readErr <- fmt.Errorf("read request: %w", err)
		return
	}
	readErr <- nil
}

func (s *Server) handle(ctx context.Context, line []byte) {
	var req dispatch.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.write(dispatch.Response{Error: dispatch.NewErrorBody(domain.NewSerializationError("", err))})
		return
	}
	if req.Command == "" {
		s.write(dispatch.Response{
			ID:    req.ID,
			Error: dispatch.NewErrorBody(domain.NewSerializationError("", errors.New("missing command"))),
		})
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, req.Command, req.Payload)
	if err != nil {
		s.write(dispatch.Response{ID: req.ID, Error: dispatch.NewErrorBody(err)})
		return
	}
	s.write(dispatch.Response{ID: req.ID, Result: result})
}

func (s *Server) write(resp dispatch.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stopped {
		s.logger.Debug("dropping response after shutdown", zap.ByteString("id", resp.ID))
		return
	}
	if _, err := s.out.Write(data); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// stop waits for a write in progress and discards all later ones.
func (s *Server) stop() {
	s.writeMu.Lock()
	s.stopped = true
	s.writeMu.Unlock()
}
