// Package metrics exposes host health for GET /metrics (§6): process CPU
// percent, RSS bytes, and a counter of tasks aborted by cancellation, both
// as a JSON snapshot and as Prometheus gauges for scraping.
package metrics

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const sampleInterval = time.Second

// Host samples process CPU/RSS on a ticker and counts aborted tasks.
type Host struct {
	cpuPercent prometheus.Gauge
	rssBytes   prometheus.Gauge
	abortCount prometheus.Counter

	mu      sync.RWMutex
	cpuPct  float64
	rssB    uint64
	aborted uint64

	clockTicks float64
	lastSample time.Time
	lastCPUJ   float64

	done chan struct{}
}

// Snapshot is the GET /metrics JSON body.
type Snapshot struct {
	CPU         float64 `json:"cpu"`
	RAM         uint64  `json:"ram"`
	AbortStatus uint64  `json:"abort_status"`
}

// NewHost creates a Host and registers its gauges with reg.
func NewHost(reg prometheus.Registerer) *Host {
	h := &Host{
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remotepilot_host_cpu_percent",
			Help: "Process CPU utilization percent, sampled once per second.",
		}),
		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remotepilot_host_rss_bytes",
			Help: "Process resident set size in bytes.",
		}),
		abortCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remotepilot_host_abort_status_total",
			Help: "Count of tasks cancelled mid-flight.",
		}),
		clockTicks: 100, // USER_HZ; standard on Linux
		done:       make(chan struct{}),
	}
	reg.MustRegister(h.cpuPercent, h.rssBytes, h.abortCount)
	return h
}

// Start begins periodic sampling.
func (h *Host) Start() {
	go h.loop()
}

// Stop halts periodic sampling.
func (h *Host) Stop() {
	close(h.done)
}

// RecordAbort increments the abort_status counter (called on task cancel).
func (h *Host) RecordAbort() {
	h.abortCount.Inc()
	atomic.AddUint64(&h.aborted, 1)
}

func (h *Host) loop() {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	h.sample()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *Host) sample() {
	now := time.Now()
	rss := readRSSBytes()

	cpuJiffies, err := readCPUJiffies()
	h.mu.Lock()
	h.rssB = rss
	h.mu.Unlock()
	if err == nil {
		h.mu.Lock()
		if !h.lastSample.IsZero() {
			elapsed := now.Sub(h.lastSample).Seconds()
			if elapsed > 0 {
				deltaCPU := (cpuJiffies - h.lastCPUJ) / h.clockTicks
				h.cpuPct = (deltaCPU / elapsed) * 100
			}
		}
		h.lastSample = now
		h.lastCPUJ = cpuJiffies
		h.mu.Unlock()
	}

	h.cpuPercent.Set(h.CPUPercent())
	h.rssBytes.Set(float64(rss))
}

// CPUPercent returns the most recently sampled CPU utilization percent.
func (h *Host) CPUPercent() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cpuPct
}

// Snapshot returns the current {cpu, ram, abort_status} triple.
func (h *Host) Snapshot() Snapshot {
	h.mu.RLock()
	rss := h.rssB
	cpu := h.cpuPct
	h.mu.RUnlock()
	return Snapshot{CPU: cpu, RAM: rss, AbortStatus: atomic.LoadUint64(&h.aborted)}
}

// readRSSBytes reads VmRSS from /proc/self/status. On platforms without
// /proc (non-Linux), it falls back to the Go runtime's reported system
// memory, a coarser but always-available proxy.
func readRSSBytes() uint64 {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Sys
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.ParseUint(fields[1], 10, 64)
				if err == nil {
					return kb * 1024
				}
			}
		}
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}

// readCPUJiffies reads utime+stime (fields 14, 15) from /proc/self/stat.
func readCPUJiffies() (float64, error) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, err
	}
	// Field 2 (comm) may contain spaces inside parentheses; skip past the
	// closing paren before splitting the remaining whitespace-delimited
	// fields.
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx < 0 {
		return 0, fmt.Errorf("unexpected /proc/self/stat format")
	}
	fields := strings.Fields(s[idx+1:])
	if len(fields) < 14 {
		return 0, fmt.Errorf("unexpected /proc/self/stat field count")
	}
	utime, err := strconv.ParseFloat(fields[11], 64) // field 14 overall
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseFloat(fields[12], 64) // field 15 overall
	if err != nil {
		return 0, err
	}
	return utime + stime, nil
}
