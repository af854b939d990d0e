package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"larkclaw/pkg/bus"
	"larkclaw/pkg/channel"
	"larkclaw/pkg/config"
	"larkclaw/pkg/dispatch"
	dispatchtypes "larkclaw/pkg/dispatch/types"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	healthCheckInterval = 30 * time.Second
)

// HealthChecker is optionally implemented by dispatchers that can probe
// their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Service runs the channel adapters, bridges inbound messages to the reply
// dispatcher, and serves gateway status endpoints.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	dispatcher dispatch.Dispatcher
	events     *bus.MessageBus
	channels   []channel.Adapter

	mu                 sync.RWMutex
	startedAt          time.Time
	dispatcherLastOKAt time.Time
	dispatcherLastErr  string
	channelStates      map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status             string                  `json:"status"`
	UptimeSeconds      int64                   `json:"uptime_seconds"`
	DispatcherLastOKAt string                  `json:"dispatcher_last_ok_at,omitempty"`
	DispatcherLastErr  string                  `json:"dispatcher_last_error,omitempty"`
	Channels           map[string]channelState `json:"channels"`
}

func NewService(cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	dispatcher, err := dispatch.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize dispatcher: %w", err)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[stateKey(adapter)] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		dispatcher:    dispatcher,
		events:        bus.NewMessageBus(),
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Events exposes the gateway lifecycle event bus.
func (s *Service) Events() *bus.MessageBus {
	return s.events
}

// Run starts the status server and all channel adapters, then blocks until
// ctx is cancelled or a channel fails. In-flight event handling is not
// awaited on shutdown.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if checker, ok := s.dispatcher.(HealthChecker); ok {
		if err := s.checkDispatcherHealth(ctx, checker); err != nil {
			return err
		}

		ticker := time.NewTicker(healthCheckInterval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_ = s.checkDispatcherHealth(ctx, checker)
				}
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		key := stateKey(adapter)
		s.setChannelState(key, channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(key, channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", key, err)
			}
		}()
	}

	defer s.events.Close()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// handleInbound is the dispatch bridge: it converts one inbound message into
// a dispatch context, collects the final reply fragments, and folds them
// into the outbound reply. Dispatch failures surface as errors for the
// channel adapter to log; no reply is produced for them.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	s.events.PublishEvent(ctx, bus.Event{
		Type:       bus.EventMessageReceived,
		Channel:    inbound.Channel,
		AccountID:  inbound.AccountID,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
	})

	dctx := dispatchtypes.NewContext(
		inbound.Channel,
		inbound.AccountID,
		inbound.SessionKey,
		inbound.SenderID,
		inbound.ChatID,
		inbound.ChatKind,
		inbound.MessageID,
		inbound.Content,
	)
	collector := dispatchtypes.NewCollector()

	if err := s.dispatcher.Dispatch(ctx, dctx, collector); err != nil {
		s.events.PublishEvent(ctx, bus.Event{
			Type:       bus.EventDispatchFailed,
			Channel:    inbound.Channel,
			AccountID:  inbound.AccountID,
			ChatID:     inbound.ChatID,
			SessionKey: inbound.SessionKey,
			Error:      err.Error(),
		})
		return bus.OutboundMessage{
			Channel:    inbound.Channel,
			AccountID:  inbound.AccountID,
			ChatID:     inbound.ChatID,
			SessionKey: inbound.SessionKey,
			Error:      err.Error(),
		}, err
	}

	// Let any asynchronous tail work the dispatcher scheduled settle before
	// folding the reply.
	if waiter, ok := s.dispatcher.(dispatch.IdleWaiter); ok {
		if err := waiter.WaitIdle(ctx); err != nil {
			s.log.Warn("Dispatcher idle wait failed", "session_key", inbound.SessionKey, "error", err)
		}
	}

	reply := collector.Join()
	if reply != "" {
		s.events.PublishEvent(ctx, bus.Event{
			Type:       bus.EventReplySent,
			Channel:    inbound.Channel,
			AccountID:  inbound.AccountID,
			ChatID:     inbound.ChatID,
			SessionKey: inbound.SessionKey,
			Payload:    map[string]string{"fragments": strconv.Itoa(collector.Count())},
		})
	}

	return bus.OutboundMessage{
		Channel:    inbound.Channel,
		AccountID:  inbound.AccountID,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
		Content:    reply,
	}, nil
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	dispatcherLastOK := ""
	if !s.dispatcherLastOKAt.IsZero() {
		dispatcherLastOK = s.dispatcherLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:             status,
		UptimeSeconds:      uptime,
		DispatcherLastOKAt: dispatcherLastOK,
		DispatcherLastErr:  s.dispatcherLastErr,
		Channels:           channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dispatcherLastErr != "" {
		return false
	}

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) checkDispatcherHealth(ctx context.Context, checker HealthChecker) error {
	if err := checker.Health(ctx); err != nil {
		s.mu.Lock()
		s.dispatcherLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("dispatcher health check failed: %w", err)
	}

	s.mu.Lock()
	s.dispatcherLastErr = ""
	s.dispatcherLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(key string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[key] = state
}

// stateKey distinguishes adapters that serve multiple accounts of one
// channel.
func stateKey(adapter channel.Adapter) string {
	type accounter interface {
		AccountID() string
	}

	if a, ok := adapter.(accounter); ok && a.AccountID() != "" {
		return adapter.Name() + "/" + a.AccountID()
	}
	return adapter.Name()
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
