// Package udev watches backlight and LED devices for brightness changes via netlink/udev events.
package udev

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// Brightness key repeat produces bursts of change events.
	netlinkBufferSize = 1024 * 1024 // 1 MB
)

// Subsystems lists the udev subsystems carrying brightness attributes.
var Subsystems = []string{"backlight", "leds"}

// Event reports that the brightness of a watched device changed.
type Event struct {
	Subsystem string
	Name      string
}

// Device returns the device as "subsystem/name".
func (e Event) Device() string {
	return e.Subsystem + "/" + e.Name
}

// EventHandler is called when a watched device changes.
type EventHandler func(event Event)

// Monitor watches a fixed set of backlight and LED devices.
type Monitor struct {
	conn    *netlink.UEventConn
	handler EventHandler
	watched map[string]struct{} // "subsystem/name"
	quit    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewMonitor creates a monitor reporting change events of the given devices,
// each written as "subsystem/name".
func NewMonitor(devices []string, handler EventHandler) *Monitor {
	watched := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		watched[d] = struct{}{}
	}
	return &Monitor{
		handler: handler,
		watched: watched,
	}
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Int("devices", len(m.watched)).Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher matches change events of the brightness subsystems.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	changeAction := "change"
	rules.AddRule(netlink.RuleDefinition{
		Action: &changeAction,
		Env: map[string]string{
			"SUBSYSTEM": fmt.Sprintf("^(%s)$", strings.Join(Subsystems, "|")),
		},
	})

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			m.mu.Unlock()
			if stopped {
				return
			}

			// Dropped events only delay signals; the poll loop reads hardware anyway.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow, some brightness events were dropped")
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, size); err == nil {
		return nil
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.ENOBUFS) {
		return true
	}
	// The udev library does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	if uevent.Action != netlink.CHANGE {
		return
	}

	event := Event{
		Subsystem: uevent.Env["SUBSYSTEM"],
		Name:      path.Base(uevent.KObj),
	}
	if _, ok := m.watched[event.Device()]; !ok {
		return
	}

	log.Debug().
		Str("devpath", uevent.KObj).
		Str("device", event.Device()).
		Msg("Brightness change event")

	if m.handler != nil {
		m.handler(event)
	}
}
