// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util holds small CLI helpers shared by icd9 commands.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Spinner Configuration
// =============================================================================

// SpinnerConfig configures spinner behavior.
type SpinnerConfig struct {
	// Message is the text displayed next to the spinner.
	Message string

	// Interval is the time between frame updates.
	// Default: 100ms
	Interval time.Duration

	// Frames are the animation characters.
	// Default: Braille dots
	Frames []string

	// Writer is where output is written.
	// Default: os.Stderr
	Writer io.Writer

	// Animate redraws frames in place. When false every message is printed
	// once on its own line, which suits logs and pipes.
	// Default: true when Writer is a terminal
	Animate *bool
}

var defaultFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// =============================================================================
// Spinner
// =============================================================================

// Spinner provides progress feedback for long CLI operations such as a
// scrape, which can run for hours at the default request rate.
//
// # Thread Safety
//
// Spinner is safe for concurrent use. SetMessage may be called from any
// goroutine while the spinner runs.
type Spinner struct {
	config  SpinnerConfig
	animate bool
	frame   int
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
}

// NewSpinner creates a stopped spinner. Zero values in config are replaced
// with defaults.
func NewSpinner(config SpinnerConfig) *Spinner {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if len(config.Frames) == 0 {
		config.Frames = defaultFrames
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	animate := isTerminal(config.Writer)
	if config.Animate != nil {
		animate = *config.Animate
	}
	return &Spinner{config: config, animate: animate}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	message := s.config.Message
	s.mu.Unlock()

	if !s.animate {
		close(s.doneCh)
		s.println(message)
		return
	}
	fmt.Fprint(s.config.Writer, "\033[?25l")
	go s.spin()
}

// SetMessage updates the displayed message.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	changed := s.config.Message != message
	s.config.Message = message
	running := s.running
	s.mu.Unlock()

	if running && changed && !s.animate {
		s.println(message)
	}
}

// IsRunning returns whether the spinner is active.
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the spinner and clears its line.
func (s *Spinner) Stop() {
	if s.halt() && s.animate {
		s.restore()
	}
}

// StopSuccess stops and prints a ✓ line.
func (s *Spinner) StopSuccess(message string) {
	if message == "" {
		message = "Done"
	}
	s.finish(successStyle.Render("✓"), message)
}

// StopFailure stops and prints a ✗ line.
func (s *Spinner) StopFailure(message string) {
	if message == "" {
		message = "Failed"
	}
	s.finish(failureStyle.Render("✗"), message)
}

func (s *Spinner) finish(mark, message string) {
	if !s.halt() {
		return
	}
	if s.animate {
		s.restore()
	}
	fmt.Fprintf(s.config.Writer, "%s %s\n", mark, message)
}

// halt stops the animation goroutine. Returns false if it was not running.
func (s *Spinner) halt() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	return true
}

// restore clears the spinner line and shows the cursor again.
func (s *Spinner) restore() {
	fmt.Fprint(s.config.Writer, "\r\033[K\033[?25h")
}

func (s *Spinner) spin() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.render()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	frame := s.config.Frames[s.frame%len(s.config.Frames)]
	message := s.config.Message
	s.frame++
	s.mu.Unlock()

	fmt.Fprintf(s.config.Writer, "\r\033[K%s %s", frame, message)
}

func (s *Spinner) println(message string) {
	if message == "" {
		return
	}
	fmt.Fprintf(s.config.Writer, "… %s\n", message)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
