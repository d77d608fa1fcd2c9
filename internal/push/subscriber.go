// Package push keeps the websocket connection to the PetBook notifier and fans
// its events out to registered handlers.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectDelay = 5 * time.Second
	pongWait              = 60 * time.Second
	pingInterval          = 30 * time.Second
	statsInterval         = 30 * time.Second
)

// Handler receives every notification delivered on the connection. event is
// the notifier's event name.
type Handler func(ctx context.Context, event string, n domain.Notification)

// Subscriber connects to the notifier for one credential and dispatches
// events. A new credential needs a new Subscriber; there is no replay of
// events missed while disconnected.
type Subscriber struct {
	url            string
	token          string
	logger         *slog.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSubscriber creates a subscriber that authenticates with token.
func NewSubscriber(notifierURL, token string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		url:            notifierURL,
		token:          token,
		logger:         logger.With("component", "push"),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		handlers:       make(map[int]Handler),
		ready:          make(chan struct{}),
	}
}

// On registers h and returns a function that unregisters it.
func (s *Subscriber) On(h Handler) (off func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Ready is closed once the first connection has been established.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Start connects to the notifier and processes events until the context is
// cancelled. It reconnects after connection errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("push connection error, reconnecting", "error", err, "delay", s.reconnectDelay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse notifier url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return err
	}

	// never log the token
	s.logger.Info("connecting to notifier", "url", s.url)

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial notifier: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to notifier")
	s.readyOnce.Do(func() { close(s.ready) })

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var eventsReceived, eventsDropped int64
	lastStatsLog := time.Now()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		event, n, err := parseEvent(frame)
		if err != nil {
			eventsDropped++
			s.logger.Error("failed to parse event", "event", event, "error", err)
			continue
		}

		eventsReceived++
		s.dispatch(ctx, event, n)

		if time.Since(lastStatsLog) >= statsInterval {
			s.logger.Info("push stats",
				"events_received", eventsReceived,
				"events_dropped", eventsDropped,
			)
			lastStatsLog = time.Now()
		}
	}
}

// keepAlive pings the notifier and closes the connection when ctx ends so a
// blocked ReadMessage returns.
func (s *Subscriber) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				s.logger.Warn("ping failed", "error", err)
			}
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, event string, n domain.Notification) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.logger.Debug("push event", "event", event, "notification_id", n.ID)
	for _, h := range handlers {
		h(ctx, event, n)
	}
}
