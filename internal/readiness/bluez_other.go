//go:build !linux

package readiness

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// BlueZSource is only available on Linux.
type BlueZSource struct {
	Adapter string
	Logger  *logrus.Logger
}

func (BlueZSource) Supported() bool { return false }

func (BlueZSource) Run(context.Context, *Aggregator) error {
	return errors.New("readiness: BlueZ is not available on this platform")
}
