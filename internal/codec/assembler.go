package codec

import (
	"errors"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

// DefaultAssemblerBuffer holds a few seconds of BM1000 stream at 100 frames/s.
const DefaultAssemblerBuffer = 4096

// FrameAssembler resynchronizes an oximeter byte stream whose frames may be split
// across notifications. Bytes are dropped until a sync byte is seen; a sync byte in
// the middle of a frame restarts it.
type FrameAssembler struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	frame    [FrameSize]byte
	pos      int
	desynced int
}

// NewFrameAssembler creates an assembler buffering up to size bytes.
func NewFrameAssembler(size int) *FrameAssembler {
	if size <= 0 {
		size = DefaultAssemblerBuffer
	}
	return &FrameAssembler{rb: ringbuffer.New(size)}
}

// Feed appends a notification payload and returns every frame completed by it.
func (a *FrameAssembler) Feed(data []byte, now time.Time) OximeterResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := OximeterResult{}
	for len(data) > 0 {
		n, err := a.rb.Write(data)
		data = data[n:]
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
			res.Err = err
			return res
		}
		a.drain(&res, now)
	}
	a.drain(&res, now)
	return res
}

func (a *FrameAssembler) drain(res *OximeterResult, now time.Time) {
	for {
		b, err := a.rb.ReadByte()
		if err != nil {
			return
		}
		switch {
		case b&syncBit != 0:
			if a.pos != 0 {
				a.desynced++
				res.Desynced++
			}
			a.frame[0] = b
			a.pos = 1
		case a.pos == 0:
			// waiting for a sync byte
		default:
			a.frame[a.pos] = b
			a.pos++
			if a.pos == FrameSize {
				if reading, ok := DecodeFrame(a.frame[:], now); ok {
					res.Readings = append(res.Readings, reading)
				}
				a.pos = 0
			}
		}
	}
}

// Pending returns the number of bytes of the frame currently being assembled.
func (a *FrameAssembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos + a.rb.Length()
}

// Reset discards buffered bytes and any partial frame.
func (a *FrameAssembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rb.Reset()
	a.pos = 0
}

// Desynced returns how many partial frames were abandoned since creation.
func (a *FrameAssembler) Desynced() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.desynced
}
