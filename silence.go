package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // clearing needs more speech than warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone      silenceEvent = iota
	silenceWarn                   // "No voice detected"
	silenceWarnClear              // speech resumed after a warning
	silenceRepeat                 // warning repeated while still silent
	silenceAutoClose              // tap-started recording gave up on silence
)

// silenceConfig is measured in wall time and converted to ticks.
type silenceConfig struct {
	WarnAfter time.Duration
	AutoClose time.Duration
}

var defaultSilence = silenceConfig{
	WarnAfter: 8 * time.Second,
	AutoClose: 30 * time.Second,
}

// silenceMonitor watches per-tick VAD verdicts during one recording. Only
// tap-started (toggle) recordings repeat the warning and auto-close; a held
// key already tells us when the user is done.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	isToggle func() bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor(cfg silenceConfig, isToggle func() bool) *silenceMonitor {
	warnAt := max(1, int(cfg.WarnAfter/tickInterval))
	windowSz := max(warnAt, int(cfg.AutoClose/tickInterval))
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		isToggle: isToggle,
		window:   make([]bool, windowSz),
	}
}

// recentRatio is the speech share over the last n ticks.
func (m *silenceMonitor) recentRatio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1
	}
	count := 0
	for i := range n {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) silenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.recentRatio(m.warnAt)
	switch {
	case m.ticks >= m.warnAt && r < speechMinRatio && !m.warned:
		m.warned = true
		m.lastWarn = m.ticks
		return silenceWarn
	case m.warned && r >= speechClearRatio:
		m.warned = false
		return silenceWarnClear
	}

	if !m.isToggle() {
		return silenceNone
	}
	// auto-close wins over a repeat on the same tick
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return silenceAutoClose
	}
	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return silenceRepeat
	}
	return silenceNone
}
