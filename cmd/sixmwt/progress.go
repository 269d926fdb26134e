package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// CountdownPrinter shows a single status line counting down to the end of a window.
//
// Usage:
//
//	p := NewCountdownPrinter(os.Stderr, "Scanning for sensors", window)
//	p.Start()
//	defer p.Stop()
//
// A CountdownPrinter is single-use; Stop may be called any number of times.
type CountdownPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	found    func() int

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewCountdownPrinter creates a printer writing to out. found, when set, is
// polled for the number of devices to show next to the countdown.
func NewCountdownPrinter(out io.Writer, prefix string, duration time.Duration, found func() int) *CountdownPrinter {
	return &CountdownPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		found:    found,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins updating the line in a background goroutine.
func (p *CountdownPrinter) Start() {
	p.startOnce.Do(func() {
		start := time.Now()
		p.print(p.duration)

		go func() {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.stop:
					return
				case <-ticker.C:
					p.print(p.duration - time.Since(start))
				}
			}
		}()
	})
}

func (p *CountdownPrinter) print(remaining time.Duration) {
	// Round to the nearest second, never below zero
	seconds := 0
	if remaining > 0 {
		seconds = int(remaining.Seconds() + 0.5)
	}
	if p.found != nil {
		fmt.Fprintf(p.out, "\r%s (%ds, %d found)   ", p.prefix, seconds, p.found())
		return
	}
	fmt.Fprintf(p.out, "\r%s (%ds)   ", p.prefix, seconds)
}

// Stop ends the updates and clears the line.
func (p *CountdownPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		// Never started: nothing to wait for
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
