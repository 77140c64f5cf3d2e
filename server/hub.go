// server/hub.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/ops"
	"github.com/firewatch-uas/firewatch/store"
	"github.com/firewatch-uas/firewatch/util"

	"github.com/gorilla/websocket"
)

// Channels a subscriber can select.
var hubChannels = []string{"telemetry", "detections", "alerts", "missions", "system"}

const (
	// Consecutive backpressured deliveries before a slow subscriber is
	// dropped.
	dropLimit = 64

	writeWait       = 10 * time.Second
	maxAuthFailures = 5
)

type HubConfig struct {
	// Accepted auth tokens; empty disables authentication entirely.
	Tokens []string `json:"tokens"`

	// A subscriber that sends no ping within this window is closed.
	HeartbeatWindow time.Duration `json:"heartbeat_window"`
}

func (c *HubConfig) SetDefaults() {
	if c.HeartbeatWindow == 0 {
		c.HeartbeatWindow = time.Minute
	}
}

// Hub fans events out to interactive websocket clients. Each subscriber
// has a bounded mailbox drained by its own writer goroutine; per-channel
// ordering follows the event stream. Ingest never blocks on a slow
// subscriber.
type Hub struct {
	cfg      HubConfig
	sub      *ops.EventsSubscription
	failures *store.RateTracker
	upgrader websocket.Upgrader
	lg       *log.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]any
}

type subscriber struct {
	conn   *websocket.Conn
	remote string

	mailbox   chan serverFrame
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	authed   bool
	channels map[string]bool
	lastPing time.Time
	drops    int
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// clientFrame is any inbound control frame.
type clientFrame struct {
	Type     string   `json:"type"`
	Token    string   `json:"token,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

type serverFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Channels  []string  `json:"channels,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Data      any       `json:"data,omitempty"`

	channel string // selection key, never serialized
}

func NewHub(es *ops.EventStream, failures *store.RateTracker, cfg HubConfig, lg *log.Logger) *Hub {
	cfg.SetDefaults()
	return &Hub{
		cfg:         cfg,
		sub:         es.Subscribe(),
		failures:    failures,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subscribers: make(map[*subscriber]any),
		lg:          lg,
	}
}

// Run pumps the event stream into subscriber mailboxes and reaps
// subscribers that missed the heartbeat window.
func (h *Hub) Run(ctx context.Context) {
	defer h.lg.CatchAndReportCrash()

	pump := time.NewTicker(100 * time.Millisecond)
	reap := time.NewTicker(h.cfg.HeartbeatWindow / 4)
	defer pump.Stop()
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sub.Unsubscribe()
			h.closeAll()
			return
		case <-pump.C:
			for _, ev := range h.sub.Get() {
				if frame, ok := eventFrame(ev); ok {
					h.broadcast(frame)
				}
			}
		case now := <-reap.C:
			h.reap(now)
		}
	}
}

// eventFrame maps a stream event to its wire frame and channel.
func eventFrame(ev ops.Event) (serverFrame, bool) {
	f := serverFrame{Timestamp: ev.Time}
	switch ev.Type {
	case ops.TelemetryEvent:
		f.Type, f.channel, f.Data = "telemetry", "telemetry", ev.Telemetry
	case ops.DetectionEvent:
		f.Type, f.channel, f.Data = "detection", "detections", ev.Detection
	case ops.TrackUpdateEvent:
		f.Type, f.channel, f.Data = "track_update", "detections", ev.Track
	case ops.AlertEvent:
		f.Type, f.channel, f.Data = "alert", "alerts", ev.Alert
	case ops.MissionUpdateEvent:
		f.Type, f.channel, f.Data = "mission_update", "missions", ev.Mission
	case ops.SystemStatusEvent:
		f.Type, f.channel = "system_status", "system"
		f.Message = ev.Message
	default:
		return serverFrame{}, false
	}
	return f, true
}

func (h *Hub) broadcast(frame serverFrame) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		selected := s.authed && s.channels[frame.channel]
		s.mu.Unlock()
		if !selected {
			continue
		}

		select {
		case <-s.done:
		case s.mailbox <- frame:
			s.mu.Lock()
			s.drops = 0
			s.mu.Unlock()
		default:
			s.mu.Lock()
			s.drops++
			drop := s.drops >= dropLimit
			s.mu.Unlock()
			if drop {
				h.lg.Warnf("hub: %s: dropped after %d backpressured deliveries", s.remote, dropLimit)
				h.remove(s)
			}
		}
	}
}

func (h *Hub) reap(now time.Time) {
	h.mu.Lock()
	var stale []*subscriber
	for s := range h.subscribers {
		s.mu.Lock()
		if now.Sub(s.lastPing) > h.cfg.HeartbeatWindow {
			stale = append(stale, s)
		}
		s.mu.Unlock()
	}
	h.mu.Unlock()

	for _, s := range stale {
		h.lg.Infof("hub: %s: missed heartbeat window", s.remote)
		h.remove(s)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s]
	delete(h.subscribers, s)
	h.mu.Unlock()

	if ok {
		s.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subscribers = make(map[*subscriber]any)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscribers returns the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the connection and runs the subscription protocol:
// auth, subscribe/unsubscribe, ping/pong, server events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warnf("hub: upgrading %s: %v", r.RemoteAddr, err)
		return
	}

	s := &subscriber{
		conn:     conn,
		remote:   remoteHost(r),
		mailbox:  make(chan serverFrame, dropLimit),
		done:     make(chan struct{}),
		channels: make(map[string]bool),
		lastPing: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[s] = nil
	h.mu.Unlock()

	go h.writer(s)
	h.reader(s)
	h.remove(s)
}

func (h *Hub) writer(s *subscriber) {
	defer h.lg.CatchAndReportCrash()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.mailbox:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				h.lg.Debugf("hub: %s: write: %v", s.remote, err)
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) reader(s *subscriber) {
	defer h.lg.CatchAndReportCrash()

	for {
		var frame clientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}
		if !h.handleFrame(s, frame) {
			return
		}
	}
}

// handleFrame processes one control frame, returning false when the
// subscription should close.
func (h *Hub) handleFrame(s *subscriber, frame clientFrame) bool {
	switch frame.Type {
	case "auth":
		return h.handleAuth(s, frame.Token)

	case "subscribe", "unsubscribe":
		s.mu.Lock()
		if !s.authed {
			s.mu.Unlock()
			h.send(s, serverFrame{Type: "auth_error", Message: "Not authenticated"})
			return false
		}
		for _, ch := range frame.Channels {
			if !slices.Contains(hubChannels, ch) {
				continue
			}
			if frame.Type == "subscribe" {
				s.channels[ch] = true
			} else {
				delete(s.channels, ch)
			}
		}
		selected := util.DuplicateMap(s.channels)
		s.mu.Unlock()

		h.send(s, serverFrame{Type: "subscribed", Channels: util.SortedMapKeys(selected)})

	case "ping":
		s.mu.Lock()
		s.lastPing = time.Now()
		s.mu.Unlock()
		h.send(s, serverFrame{Type: "pong"})

	default:
		h.lg.Debugf("hub: %s: unknown frame type %q", s.remote, frame.Type)
	}
	return true
}

func (h *Hub) handleAuth(s *subscriber, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if h.failures.Lookup(ctx, s.remote) >= maxAuthFailures {
		h.send(s, serverFrame{Type: "auth_error", Message: "Too many failed attempts"})
		return false
	}

	if len(h.cfg.Tokens) > 0 && !slices.Contains(h.cfg.Tokens, token) {
		h.failures.Insert(ctx, s.remote)
		h.send(s, serverFrame{Type: "auth_error", Message: "Invalid token"})
		return true
	}

	s.mu.Lock()
	s.authed = true
	s.mu.Unlock()
	h.failures.Expire(ctx, s.remote)
	h.send(s, serverFrame{Type: "auth_success"})
	return true
}

// send queues a control reply, dropping it if the mailbox is full;
// control replies share the event mailbox so ordering is preserved.
func (h *Hub) send(s *subscriber, frame serverFrame) {
	select {
	case <-s.done:
	case s.mailbox <- frame:
	default:
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
