package device

import "time"

// OximeterReading is one decoded pulse-oximeter frame.
// Nil pointer fields mean "not available".
type OximeterReading struct {
	SpO2             *int      `json:"spo2"`
	HeartRate        *int      `json:"heart_rate"`
	SignalStrength   int       `json:"signal_strength"`
	NoFingerDetected bool      `json:"no_finger"`
	Pleth            *int      `json:"pleth"`
	BarGraph         *int      `json:"bar_graph"`
	Timestamp        time.Time `json:"timestamp"`
}

// WearableReading is one decoded step-counter notification.
// TotalSteps is nil when the payload could not be decoded, which is distinct from zero.
type WearableReading struct {
	TotalSteps *int32    `json:"total_steps"`
	Timestamp  time.Time `json:"timestamp"`
}

// Reading is the per-category tagged union published by a connection.
// Exactly one of Oximeter or Wearable is set for a non-empty reading.
type Reading struct {
	Category Category         `json:"category"`
	Oximeter *OximeterReading `json:"oximeter,omitempty"`
	Wearable *WearableReading `json:"wearable,omitempty"`
}

// EmptyReading is the all-absent default for a category.
func EmptyReading(c Category) Reading {
	return Reading{Category: c}
}

// IsEmpty reports whether r carries no decoded data.
func (r Reading) IsEmpty() bool {
	return r.Oximeter == nil && r.Wearable == nil
}

// Timestamp returns the decode time of the reading, zero when empty.
func (r Reading) Timestamp() time.Time {
	switch {
	case r.Oximeter != nil:
		return r.Oximeter.Timestamp
	case r.Wearable != nil:
		return r.Wearable.Timestamp
	default:
		return time.Time{}
	}
}
