package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "nil", err: nil, contains: ""},
		{name: "bluetooth off", err: fmt.Errorf("connect: %w", device.ErrBluetoothOff), contains: "Power on the adapter"},
		{name: "permission denied", err: device.ErrPermissionDenied, contains: "Grant access"},
		{name: "location disabled", err: device.ErrLocationDisabled, contains: "Location services"},
		{name: "unknown category", err: device.ErrUnknownCategory, contains: "Scan first"},
		{
			name:     "missing service",
			err:      &device.NotFoundError{Resource: "service", UUIDs: []string{"180d"}},
			contains: `service "180d" not found`,
		},
		{name: "other", err: errors.New("boom"), contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			if tt.contains == "" {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains)
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
