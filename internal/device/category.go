package device

import (
	"fmt"
	"strings"
)

// Category identifies which kind of sensor a peripheral is.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryOximeter
	CategoryWearable
)

// Categories lists the connectable categories, in a stable order.
var Categories = []Category{CategoryOximeter, CategoryWearable}

func (c Category) String() string {
	switch c {
	case CategoryOximeter:
		return "oximeter"
	case CategoryWearable:
		return "wearable"
	default:
		return "unknown"
	}
}

// Known reports whether c is a connectable category.
func (c Category) Known() bool {
	return c == CategoryOximeter || c == CategoryWearable
}

// ParseCategory parses the textual form produced by Category.String.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oximeter", "oxi", "spo2":
		return CategoryOximeter, nil
	case "wearable", "steps":
		return CategoryWearable, nil
	case "unknown", "":
		return CategoryUnknown, nil
	default:
		return CategoryUnknown, fmt.Errorf("unknown device category %q", s)
	}
}

// ScannedDevice is a peripheral seen during discovery.
// Identity is defined by Address alone.
type ScannedDevice struct {
	Name     string   `json:"name,omitempty"`
	Address  string   `json:"address"`
	RSSI     *int     `json:"rssi,omitempty"`
	Category Category `json:"category"`
}

// SameDevice reports whether two records describe the same peripheral.
func (d ScannedDevice) SameDevice(other ScannedDevice) bool {
	return strings.EqualFold(d.Address, other.Address)
}

// DisplayName returns the advertised name, or the address when none was seen.
func (d ScannedDevice) DisplayName() string {
	if d.Name == "" {
		return d.Address
	}
	return d.Name
}

// MarshalText lets categories render as strings in JSON and YAML.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
