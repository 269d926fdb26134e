package observe

import (
	"fmt"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/device"
	"golang.org/x/time/rate"
)

// Diagnostic is one human-readable message about a category's connection.
type Diagnostic struct {
	Time     time.Time       `json:"time"`
	Category device.Category `json:"category"`
	Address  string          `json:"address,omitempty"`
	Level    logrus.Level    `json:"level"`
	Message  string          `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Address == "" {
		return fmt.Sprintf("[%s] %s", d.Category, d.Message)
	}
	return fmt.Sprintf("[%s %s] %s", d.Category, d.Address, d.Message)
}

// DiagnosticsConfig controls history depth and flood limiting.
type DiagnosticsConfig struct {
	// History is the number of recent messages retained for late subscribers.
	History int
	// Rate and Burst bound how often EmitLimited messages pass per category.
	Rate  rate.Limit
	Burst int
}

// Diagnostics is the diagnostic stream. Every message is logged, retained in an
// overwrite-oldest history buffer, and fanned out to subscribers.
type Diagnostics struct {
	mu       sync.Mutex
	history  mpmc.RichOverlappedRingBuffer[Diagnostic]
	subs     map[*RingChannel[Diagnostic]]struct{}
	limiters map[device.Category]*rate.Limiter
	cfg      DiagnosticsConfig
	logger   *logrus.Logger
	dropped  uint64
	now      func() time.Time
}

// NewDiagnostics creates a diagnostic stream. A nil logger gets a default one.
func NewDiagnostics(cfg DiagnosticsConfig, logger *logrus.Logger) *Diagnostics {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.History <= 0 {
		cfg.History = 64
	}
	if cfg.Rate <= 0 {
		cfg.Rate = rate.Every(time.Second)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Diagnostics{
		history:  mpmc.NewOverlappedRingBuffer[Diagnostic](uint32(cfg.History)),
		subs:     make(map[*RingChannel[Diagnostic]]struct{}),
		limiters: make(map[device.Category]*rate.Limiter),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Emit publishes a message for a category.
func (d *Diagnostics) Emit(category device.Category, address string, level logrus.Level, format string, args ...any) {
	msg := Diagnostic{
		Time:     d.now(),
		Category: category,
		Address:  address,
		Level:    level,
		Message:  fmt.Sprintf(format, args...),
	}

	d.logger.WithFields(logrus.Fields{
		"category": category,
		"address":  address,
	}).Log(level, msg.Message)

	d.mu.Lock()
	defer d.mu.Unlock()

	if overwrites, err := d.history.EnqueueM(msg); err != nil {
		d.logger.WithError(err).Warn("diagnostic history enqueue failed")
	} else {
		d.dropped += uint64(overwrites)
	}
	for s := range d.subs {
		s.Send(msg)
	}
}

// Infof emits an informational message.
func (d *Diagnostics) Infof(category device.Category, address string, format string, args ...any) {
	d.Emit(category, address, logrus.InfoLevel, format, args...)
}

// Warnf emits a warning.
func (d *Diagnostics) Warnf(category device.Category, address string, format string, args ...any) {
	d.Emit(category, address, logrus.WarnLevel, format, args...)
}

// Errorf emits an error message.
func (d *Diagnostics) Errorf(category device.Category, address string, format string, args ...any) {
	d.Emit(category, address, logrus.ErrorLevel, format, args...)
}

// EmitLimited emits like Emit, but drops the message when the per-category rate
// is exceeded. It reports whether the message was published.
func (d *Diagnostics) EmitLimited(category device.Category, address string, level logrus.Level, format string, args ...any) bool {
	d.mu.Lock()
	lim, ok := d.limiters[category]
	if !ok {
		lim = rate.NewLimiter(d.cfg.Rate, d.cfg.Burst)
		d.limiters[category] = lim
	}
	d.mu.Unlock()

	if !lim.AllowN(d.now(), 1) {
		return false
	}
	d.Emit(category, address, level, format, args...)
	return true
}

// History returns the retained messages, oldest first.
func (d *Diagnostics) History() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Diagnostic, 0, d.history.Cap())
	for !d.history.IsEmpty() {
		msg, err := d.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, msg)
	}
	// Dequeue is destructive; put the snapshot back.
	for _, msg := range out {
		_, _ = d.history.EnqueueM(msg)
	}
	return out
}

// Overwritten returns how many messages fell out of the history buffer.
func (d *Diagnostics) Overwritten() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Subscribe streams future messages. The cancel function unsubscribes and closes the channel.
func (d *Diagnostics) Subscribe(buffer int) (<-chan Diagnostic, func()) {
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}
	rc := NewRingChannel[Diagnostic](buffer)

	d.mu.Lock()
	d.subs[rc] = struct{}{}
	d.mu.Unlock()

	return rc.C(), func() {
		d.mu.Lock()
		_, ok := d.subs[rc]
		delete(d.subs, rc)
		d.mu.Unlock()
		if ok {
			rc.Close()
		}
	}
}

// Close closes every subscriber channel.
func (d *Diagnostics) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s := range d.subs {
		s.Close()
		delete(d.subs, s)
	}
}
