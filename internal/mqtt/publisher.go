package mqtt

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/serial_imu/internal/imu"
)

const (
	publishTimeout = 5 * time.Second

	// pendingLimit bounds the tokens awaiting an outcome. At the default
	// 1 kHz poll rate this is about a quarter second of readings.
	pendingLimit = 512
)

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Topics names where each reading is published.
type Topics struct {
	IMU string
	Mag string
}

type pendingPublish struct {
	topic string
	token mqtt.Token
}

// Publisher is the poller's sink: it encodes each reading as JSON and
// publishes it without blocking the caller. Readings produced while the
// broker connection is down are dropped and counted as failures.
type Publisher struct {
	conn   tokenPublisher
	topics Topics
	qos    byte
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan pendingPublish
	done    chan struct{}

	offline  atomic.Bool
	sent     atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

// NewPublisher starts the publisher's outcome watcher. Call Close to stop it.
func NewPublisher(conn tokenPublisher, topics Topics, qos byte, logger *slog.Logger) *Publisher {
	p := &Publisher{
		conn:    conn,
		topics:  topics,
		qos:     qos,
		logger:  logger.With("component", "publisher"),
		pending: make(chan pendingPublish, pendingLimit),
		done:    make(chan struct{}),
	}
	go p.watch()
	return p
}

// PublishIMU publishes an accel+gyro reading on the IMU topic.
func (p *Publisher) PublishIMU(r imu.Reading) {
	p.publish(p.topics.IMU, r)
}

// PublishMag publishes a magnetometer reading on the mag topic.
func (p *Publisher) PublishMag(m imu.MagneticReading) {
	p.publish(p.topics.Mag, m)
}

// Sent and Failures count publish outcomes. Dropped is the subset of
// failures never handed to the client because the connection was down.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }
func (p *Publisher) Failures() uint64 { return p.failures.Load() }
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Close stops accepting readings and waits until every pending publish
// has an outcome. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.pending)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Publisher) publish(topic string, v any) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.failures.Add(1)
		return
	}

	// paho queues QoS>0 publishes in memory while it reconnects; at this
	// rate that exhausts its message IDs, so stale readings are not queued.
	if !p.conn.IsConnected() {
		p.failures.Add(1)
		p.dropped.Add(1)
		if p.offline.CompareAndSwap(false, true) {
			p.logger.Warn("mqtt not connected, dropping readings")
		}
		return
	}
	if p.offline.CompareAndSwap(true, false) {
		p.logger.Info("mqtt connected, publishing resumed", "dropped_total", p.dropped.Load())
	}

	payload, err := json.Marshal(v)
	if err != nil {
		p.failures.Add(1)
		p.logger.Error("json marshal error", "topic", topic, "err", err)
		return
	}

	token := p.conn.Publish(topic, p.qos, false, payload)
	select {
	case p.pending <- pendingPublish{topic: topic, token: token}:
	default:
		p.failures.Add(1)
		p.logger.Debug("mqtt publish backlog full", "topic", topic)
	}
}

// watch records publish outcomes in order. Errors are logged at debug:
// while the broker is down every cycle fails and the connection-lost
// warning already covers it.
func (p *Publisher) watch() {
	defer close(p.done)
	for pp := range p.pending {
		if !pp.token.WaitTimeout(publishTimeout) {
			p.failures.Add(1)
			p.logger.Debug("mqtt publish timeout", "topic", pp.topic)
			continue
		}
		if err := pp.token.Error(); err != nil {
			p.failures.Add(1)
			p.logger.Debug("mqtt publish error", "topic", pp.topic, "err", err)
			continue
		}
		p.sent.Add(1)
	}
}
