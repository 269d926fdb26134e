package codec

import (
	"encoding/binary"
	"time"

	"github.com/srg/sixmwt/internal/device"
)

// StepPayloadSize is the length of a step counter notification.
const StepPayloadSize = 4

// DecodeWearable decodes a little-endian int32 step count. Any other payload
// length yields a reading with an absent step count, never a zero.
func DecodeWearable(data []byte, now time.Time) device.WearableReading {
	reading := device.WearableReading{Timestamp: now}
	if len(data) != StepPayloadSize {
		return reading
	}
	steps := int32(binary.LittleEndian.Uint32(data))
	reading.TotalSteps = &steps
	return reading
}

// EncodeWearable produces the payload the step counter firmware notifies.
func EncodeWearable(steps int32) []byte {
	buf := make([]byte, StepPayloadSize)
	binary.LittleEndian.PutUint32(buf, uint32(steps))
	return buf
}
