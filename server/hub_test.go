// server/hub_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firewatch-uas/firewatch/fleet"
	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/ops"
	"github.com/firewatch-uas/firewatch/store"

	"github.com/gorilla/websocket"
)

func makeHub(t *testing.T, tokens ...string) *Hub {
	t.Helper()
	lg := log.Discard()
	es := ops.NewEventStream(lg)
	return NewHub(es, store.NewRateTracker("", time.Minute, lg),
		HubConfig{Tokens: tokens}, lg)
}

func makeSub(remote string) *subscriber {
	return &subscriber{
		remote:   remote,
		mailbox:  make(chan serverFrame, dropLimit),
		done:     make(chan struct{}),
		channels: make(map[string]bool),
		lastPing: time.Now(),
	}
}

func drain(s *subscriber) []serverFrame {
	var frames []serverFrame
	for {
		select {
		case f := <-s.mailbox:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestEventFrame(t *testing.T) {
	now := time.Now()
	for _, tc := range []struct {
		ev      ops.Event
		typ     string
		channel string
	}{
		{ops.Event{Type: ops.TelemetryEvent, Telemetry: &fleet.TelemetrySample{}}, "telemetry", "telemetry"},
		{ops.Event{Type: ops.DetectionEvent, Detection: &fleet.Detection{}}, "detection", "detections"},
		{ops.Event{Type: ops.AlertEvent, Alert: &fleet.Alert{}}, "alert", "alerts"},
		{ops.Event{Type: ops.MissionUpdateEvent, Mission: &fleet.Mission{}}, "mission_update", "missions"},
		{ops.Event{Type: ops.SystemStatusEvent, Message: "ok"}, "system_status", "system"},
	} {
		tc.ev.Time = now
		f, ok := eventFrame(tc.ev)
		if !ok || f.Type != tc.typ || f.channel != tc.channel {
			t.Errorf("event %s: got (%s, %s, %t), expected (%s, %s)",
				tc.ev.Type, f.Type, f.channel, ok, tc.typ, tc.channel)
		}
	}
}

func TestHubFrameProtocol(t *testing.T) {
	h := makeHub(t, "secret")
	s := makeSub("10.0.0.1")

	// Subscribing before auth is rejected and closes the connection.
	if h.handleFrame(s, clientFrame{Type: "subscribe", Channels: []string{"telemetry"}}) {
		t.Error("unauthenticated subscribe did not close")
	}
	if frames := drain(s); len(frames) != 1 || frames[0].Type != "auth_error" {
		t.Fatalf("got %+v, expected auth_error", frames)
	}

	if !h.handleFrame(s, clientFrame{Type: "auth", Token: "secret"}) {
		t.Fatal("valid auth closed the connection")
	}
	if frames := drain(s); len(frames) != 1 || frames[0].Type != "auth_success" {
		t.Fatalf("got %+v, expected auth_success", frames)
	}

	h.handleFrame(s, clientFrame{Type: "subscribe", Channels: []string{"telemetry", "alerts", "bogus"}})
	frames := drain(s)
	if len(frames) != 1 || frames[0].Type != "subscribed" {
		t.Fatalf("got %+v, expected subscribed", frames)
	}
	if got := frames[0].Channels; len(got) != 2 || got[0] != "alerts" || got[1] != "telemetry" {
		t.Errorf("subscribed channels %v, expected the two valid ones", got)
	}

	h.handleFrame(s, clientFrame{Type: "unsubscribe", Channels: []string{"alerts"}})
	frames = drain(s)
	if len(frames) != 1 || len(frames[0].Channels) != 1 || frames[0].Channels[0] != "telemetry" {
		t.Errorf("got %+v, expected telemetry to remain", frames)
	}

	h.handleFrame(s, clientFrame{Type: "ping"})
	if frames := drain(s); len(frames) != 1 || frames[0].Type != "pong" {
		t.Errorf("got %+v, expected pong", frames)
	}
}

func TestHubAuthBlacklist(t *testing.T) {
	h := makeHub(t, "secret")

	for i := 0; i < maxAuthFailures; i++ {
		s := makeSub("10.0.0.2")
		h.handleFrame(s, clientFrame{Type: "auth", Token: "wrong"})
		if frames := drain(s); len(frames) != 1 || frames[0].Type != "auth_error" {
			t.Fatalf("attempt %d: got %+v, expected auth_error", i, frames)
		}
	}

	// Even the right token is refused once the address is blacklisted.
	s := makeSub("10.0.0.2")
	if h.handleFrame(s, clientFrame{Type: "auth", Token: "secret"}) {
		t.Error("blacklisted client was not closed")
	}
	if frames := drain(s); len(frames) != 1 || frames[0].Message != "Too many failed attempts" {
		t.Errorf("got %+v, expected lockout", frames)
	}

	// A different address is unaffected.
	other := makeSub("10.0.0.3")
	h.handleFrame(other, clientFrame{Type: "auth", Token: "secret"})
	if frames := drain(other); len(frames) != 1 || frames[0].Type != "auth_success" {
		t.Errorf("got %+v, expected auth_success", frames)
	}
}

func TestHubBackpressure(t *testing.T) {
	h := makeHub(t)
	s := makeSub("10.0.0.4")
	s.authed = true
	s.channels["telemetry"] = true

	h.mu.Lock()
	h.subscribers[s] = nil
	h.mu.Unlock()

	frame := serverFrame{Type: "telemetry", channel: "telemetry"}
	for i := 0; i < 2*dropLimit+1; i++ {
		h.broadcast(frame)
	}

	if h.Subscribers() != 0 {
		t.Error("slow subscriber was not dropped")
	}
	select {
	case <-s.done:
	default:
		t.Error("dropped subscriber was not closed")
	}
}

func TestHubWebsocket(t *testing.T) {
	lg := log.Discard()
	es := ops.NewEventStream(lg)
	h := NewHub(es, store.NewRateTracker("", time.Minute, lg),
		HubConfig{Tokens: []string{"secret"}}, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func() serverFrame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f serverFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		return f
	}

	conn.WriteJSON(clientFrame{Type: "auth", Token: "secret"})
	if f := read(); f.Type != "auth_success" {
		t.Fatalf("got %+v, expected auth_success", f)
	}

	conn.WriteJSON(clientFrame{Type: "subscribe", Channels: []string{"telemetry"}})
	if f := read(); f.Type != "subscribed" {
		t.Fatalf("got %+v, expected subscribed", f)
	}

	es.Post(ops.Event{Type: ops.TelemetryEvent, Time: time.Now(),
		Telemetry: &fleet.TelemetrySample{UAVID: "U1", Battery: 90}})
	if f := read(); f.Type != "telemetry" {
		t.Fatalf("got %+v, expected the telemetry event", f)
	}

	conn.WriteJSON(clientFrame{Type: "ping"})
	if f := read(); f.Type != "pong" {
		t.Fatalf("got %+v, expected pong", f)
	}
}
