// Package poller drives the request/response cycle with the IMU.
package poller

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/serial_imu/internal/imu"
)

// drainLimit bounds the bytes discarded while resyncing, so a port that
// never goes quiet cannot hold a cycle forever.
const drainLimit = 16 * imu.FrameSize

// Sink receives the two readings decoded on each successful cycle.
// Delivery is fire-and-forget: the poller never waits on or inspects it.
type Sink interface {
	PublishIMU(imu.Reading)
	PublishMag(imu.MagneticReading)
}

// Config is the runtime config the poller needs.
type Config struct {
	Interval      time.Duration
	StatsInterval time.Duration // 0 disables the periodic stats log
}

// Stats counts cycle outcomes since the poller was created.
type Stats struct {
	Cycles        uint64
	Published     uint64
	WriteFailures uint64
	ReadFailures  uint64
	Discarded     uint64 // stale bytes dropped after a failed read
}

// Poller sends the command frame, reads the reply, decodes it and hands
// the readings to the sink. It is the only user of its port.
type Poller struct {
	cfg    Config
	port   io.ReadWriter
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	frame [imu.FrameSize]byte
	// resync is set after a failed read: the tail of that reply may still
	// arrive and has to be dropped before the next command.
	resync bool

	cycles        atomic.Uint64
	published     atomic.Uint64
	writeFailures atomic.Uint64
	readFailures  atomic.Uint64
	discarded     atomic.Uint64
}

// New creates a poller. The caller keeps ownership of port and closes it.
func New(cfg Config, port io.ReadWriter, sink Sink, logger *slog.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.StatsInterval < 0 {
		return nil, errors.New("poller: stats interval must be >= 0")
	}
	if port == nil {
		return nil, errors.New("poller: port required")
	}
	if sink == nil {
		return nil, errors.New("poller: sink required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		port:   port,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}, nil
}

// RunCycle performs exactly one SEND → RECEIVE → DECODE → PUBLISH cycle.
// Any I/O failure aborts the cycle with nothing published; the next tick
// is the retry. It reports whether readings were published.
func (p *Poller) RunCycle() bool {
	p.cycles.Add(1)

	if p.resync {
		p.drain()
		p.resync = false
	}

	if _, err := p.port.Write(imu.CommandFrame()); err != nil {
		p.writeFailures.Add(1)
		p.logger.Debug("command write failed", "err", err)
		return false
	}

	// Short replies count as read failures.
	if _, err := io.ReadFull(p.port, p.frame[:]); err != nil {
		p.readFailures.Add(1)
		p.resync = true
		p.logger.Debug("frame read failed", "err", err)
		return false
	}

	reading, mag, err := imu.Decode(p.frame[:], p.now())
	if err != nil {
		p.readFailures.Add(1)
		p.resync = true
		p.logger.Debug("frame decode failed", "err", err)
		return false
	}

	p.sink.PublishIMU(reading)
	p.sink.PublishMag(mag)
	p.published.Add(1)
	return true
}

// drain reads and drops whatever is pending on the port. The serial
// driver has no flush, so it reads until a read comes back empty or fails
// (the inter-character timeout on hardware).
func (p *Poller) drain() {
	var buf [64]byte
	total := 0
	for total < drainLimit {
		n, err := p.port.Read(buf[:])
		total += n
		if n == 0 || err != nil {
			break
		}
	}
	if total > 0 {
		p.discarded.Add(uint64(total))
		p.logger.Debug("discarded stale bytes", "bytes", total)
	}
}

// Stats returns a snapshot of the cycle counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:        p.cycles.Load(),
		Published:     p.published.Load(),
		WriteFailures: p.writeFailures.Load(),
		ReadFailures:  p.readFailures.Load(),
		Discarded:     p.discarded.Load(),
	}
}

func (p *Poller) logStats() {
	s := p.Stats()
	p.logger.Info("poll stats",
		"cycles", s.Cycles,
		"published", s.Published,
		"write_failures", s.WriteFailures,
		"read_failures", s.ReadFailures,
		"discarded_bytes", s.Discarded,
	)
}
