// Package codec decodes the binary notification payloads of the supported sensors.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/srg/sixmwt/internal/device"
)

// FrameSize is the length of one BM1000 oximeter frame.
const FrameSize = 5

// Sentinel raw values meaning "not available".
const (
	SpO2Unavailable      = 127
	HeartRateUnavailable = 255
	signalNoFinger       = 15
)

const (
	syncBit          = 1 << 7
	heartRateHighBit = 1 << 6
	pulseFlag        = 1 << 5
	noFingerFlag     = 1 << 4
)

// ErrInvalidLength is returned for payloads that are empty or not a whole number of frames.
var ErrInvalidLength = errors.New("invalid oximeter payload length")

// OximeterResult is the outcome of decoding one notification.
type OximeterResult struct {
	// Readings holds one entry per frame with a valid sync bit, in order.
	Readings []device.OximeterReading
	// Desynced counts frames skipped because their sync bit was clear.
	Desynced int
	Err      error
}

// Latest returns the last valid reading of the notification.
func (r OximeterResult) Latest() (device.OximeterReading, bool) {
	if len(r.Readings) == 0 {
		return device.OximeterReading{}, false
	}
	return r.Readings[len(r.Readings)-1], true
}

// DecodeOximeter decodes a notification made of one or more concatenated frames.
// Frames whose sync bit is clear are skipped and counted; decoding continues with
// the next frame.
func DecodeOximeter(data []byte, now time.Time) OximeterResult {
	if len(data) == 0 || len(data)%FrameSize != 0 {
		return OximeterResult{Err: fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(data))}
	}

	res := OximeterResult{Readings: make([]device.OximeterReading, 0, len(data)/FrameSize)}
	for off := 0; off < len(data); off += FrameSize {
		reading, ok := DecodeFrame(data[off:off+FrameSize], now)
		if !ok {
			res.Desynced++
			continue
		}
		res.Readings = append(res.Readings, reading)
	}
	return res
}

// DecodeFrame decodes exactly one frame. ok is false when the sync bit is clear.
func DecodeFrame(frame []byte, now time.Time) (reading device.OximeterReading, ok bool) {
	if len(frame) != FrameSize || frame[0]&syncBit == 0 {
		return device.OximeterReading{}, false
	}

	signal := int(frame[0] & 0x0F)
	pleth := int(frame[1] & 0x7F)
	barGraph := int(frame[2] & 0x0F)
	heartRate := int(frame[3]&0x7F) | int(frame[2]&heartRateHighBit)<<1
	spo2 := int(frame[4] & 0x7F)

	noFinger := frame[2]&noFingerFlag != 0 ||
		signal == signalNoFinger ||
		spo2 == SpO2Unavailable ||
		heartRate == HeartRateUnavailable

	reading = device.OximeterReading{
		SignalStrength:   signal,
		NoFingerDetected: noFinger,
		Pleth:            &pleth,
		BarGraph:         &barGraph,
		Timestamp:        now,
	}
	if !noFinger {
		reading.SpO2 = &spo2
		reading.HeartRate = &heartRate
	}
	return reading, true
}

// PulseDetected reports the pulse flag of a raw frame.
func PulseDetected(frame []byte) bool {
	return len(frame) == FrameSize && frame[2]&pulseFlag != 0
}
