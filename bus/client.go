// bus/client.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/firewatch-uas/firewatch/log"
	"github.com/firewatch-uas/firewatch/util"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

var (
	ErrProtocolViolation = errors.New("Malformed bus payload")
	ErrPublishTimeout    = errors.New("Bus publish timed out")
	ErrNotConnected      = errors.New("Bus client is not connected")
)

const (
	publishTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second

	// Publishes issued while the broker is unreachable are queued and
	// flushed on reconnect; past this point the oldest are dropped.
	offlineQueueLimit = 4096

	// Inbound messages are handed to handlers through a bounded inbox so
	// that a slow handler backpressures the bus library rather than
	// growing memory without limit.
	inboxSize = 256
)

// Handler receives the payloads of a subscription. Handlers run on a
// dispatch goroutine, never on the bus library's ingest thread, and are
// called in broker order per topic.
type Handler func(topic string, payload []byte)

type queuedPublish struct {
	topic   string
	payload []byte
}

type inboundMessage struct {
	topic   string
	payload []byte
	handler Handler
}

// Client is a topic-addressed publish/subscribe facade over MQTT.
// Connect and Disconnect are idempotent and fail-soft: a missing broker
// degrades to queued publishing and background reconnection, never to a
// caller-facing failure. All delivery is at-least-once (QoS 1).
type Client struct {
	mc      mqtt.Client
	breaker *gobreaker.CircuitBreaker
	lg      *log.Logger

	mu     sync.Mutex
	subs   map[string]Handler
	queued []queuedPublish

	inbox     chan inboundMessage
	connected util.AtomicBool
	started   util.AtomicBool
}

func NewClient(brokerURL, clientID string, lg *log.Logger) *Client {
	c := &Client{
		subs:  make(map[string]Handler),
		inbox: make(chan inboundMessage, inboxSize),
		lg:    lg,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bus-publish",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warnf("bus: publish breaker %v -> %v", from, to)
		},
	})

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(func(mqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connected.Store(false)
			lg.Warnf("bus: connection lost: %v", err)
		})
	c.mc = mqtt.NewClient(opts)

	go c.dispatchLoop()
	return c
}

// Connect starts the connection. It returns promptly even when the
// broker is unreachable; the client keeps retrying in the background and
// flushes queued publishes once connected.
func (c *Client) Connect() error {
	if c.started.Swap(true) {
		return nil
	}

	tok := c.mc.Connect()
	if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
		c.lg.Warnf("bus: connect: %v", tok.Error())
	}
	return nil
}

// Disconnect stops the client. Idempotent.
func (c *Client) Disconnect() {
	if !c.started.Swap(false) {
		return
	}
	c.connected.Store(false)
	c.mc.Disconnect(250)
}

func (c *Client) onConnect() {
	c.connected.Store(true)

	// Re-establish subscriptions, then drain the offline queue.
	c.mu.Lock()
	patterns := util.SortedMapKeys(c.subs)
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()

	for _, pattern := range patterns {
		c.subscribe(pattern)
	}
	c.lg.Infof("bus: connected; restored %d subscriptions, flushing %d queued publishes",
		len(patterns), len(queued))

	for _, qp := range queued {
		c.publishRaw(qp.topic, qp.payload)
	}
}

// Publish marshals msg as JSON and publishes it at QoS 1. When the
// broker is unreachable the publish is queued locally; persistent
// failure surfaces as a warning, never as a caller-facing error.
func (c *Client) Publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.publishRaw(topic, payload)
	return nil
}

func (c *Client) publishRaw(topic string, payload []byte) {
	if !c.connected.Load() {
		c.enqueue(topic, payload)
		return
	}

	err := util.Retry(context.Background(), 3, 250*time.Millisecond, 2*time.Second, func() error {
		_, err := c.breaker.Execute(func() (any, error) {
			tok := c.mc.Publish(topic, 1, false, payload)
			if !tok.WaitTimeout(publishTimeout) {
				return nil, ErrPublishTimeout
			}
			return nil, tok.Error()
		})
		return err
	})
	if err != nil {
		c.lg.Warnf("bus: publish %s failed, queueing: %v", topic, err)
		c.enqueue(topic, payload)
	}
}

func (c *Client) enqueue(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queued) >= offlineQueueLimit {
		c.lg.Warnf("bus: offline queue full; dropping oldest publish for %s", c.queued[0].topic)
		c.queued = c.queued[1:]
	}
	c.queued = append(c.queued, queuedPublish{topic: topic, payload: payload})
}

// Subscribe registers a handler for a topic pattern. The subscription
// survives reconnection.
func (c *Client) Subscribe(pattern string, handler Handler) error {
	c.mu.Lock()
	c.subs[pattern] = handler
	c.mu.Unlock()

	if c.connected.Load() {
		c.subscribe(pattern)
	}
	return nil
}

func (c *Client) subscribe(pattern string) {
	c.mu.Lock()
	handler := c.subs[pattern]
	c.mu.Unlock()

	tok := c.mc.Subscribe(pattern, 1, func(_ mqtt.Client, m mqtt.Message) {
		c.inbox <- inboundMessage{topic: m.Topic(), payload: m.Payload(), handler: handler}
	})
	if tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
		c.lg.Warnf("bus: subscribe %s: %v", pattern, tok.Error())
	}
}

func (c *Client) dispatchLoop() {
	for m := range c.inbox {
		c.dispatch(m)
	}
}

func (c *Client) dispatch(m inboundMessage) {
	defer c.lg.CatchAndReportCrash()
	m.handler(m.topic, m.payload)
}

func (c *Client) Connected() bool { return c.connected.Load() }
