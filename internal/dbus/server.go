// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the screen brightness offset on the session bus so that
// hotkeys and desktop extensions can nudge the ambient-light curve.
package dbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when offset change requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrInvalidStep is returned when an invalid offset step value is provided.
var ErrInvalidStep = errors.New("step must be between 0 and 100")

// ErrNotReady is returned when no offset controller has been attached yet.
var ErrNotReady = errors.New("brightness controller not ready")

const (
	// rateLimitPerSecond is the maximum number of offset changes per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for offset changes.
	rateLimitBurst = 5

	// maxStep is the largest step accepted in one request.
	maxStep = 100
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.AlsBrightness"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/AlsBrightness"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.AlsBrightness"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="IncreaseOffset">
      <arg name="step" type="u" direction="in"/>
      <arg name="offset" type="i" direction="out"/>
    </method>
    <method name="DecreaseOffset">
      <arg name="step" type="u" direction="in"/>
      <arg name="offset" type="i" direction="out"/>
    </method>
    <method name="ResetOffset">
      <arg name="offset" type="i" direction="out"/>
    </method>
    <method name="GetOffset">
      <arg name="offset" type="i" direction="out"/>
    </method>
    <signal name="OffsetChanged">
      <arg name="offset" type="i"/>
    </signal>
    <signal name="BrightnessChanged">
      <arg name="device" type="s"/>
      <arg name="level" type="u"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// OffsetController changes the screen brightness offset.
// This allows for mocking in tests.
type OffsetController interface {
	IncreaseOffset(step int8) (int8, error)
	DecreaseOffset(step int8) (int8, error)
	ResetOffset() (int8, error)
	Offset() (int8, error)
}

// Server implements the D-Bus service for offset control.
//
// Thread safety:
//   - The OffsetController serializes offset changes itself.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - The controllerMu mutex protects the controller field.
type Server struct {
	conn         *dbus.Conn
	connMu       sync.RWMutex // Protects conn field only
	controller   OffsetController
	controllerMu sync.RWMutex
	rateLimiter  *rate.Limiter
	defaultStep  atomic.Uint32
}

// NewServer creates a new D-Bus server. A step of 0 in a request means defaultStep.
func NewServer(defaultStep uint32) *Server {
	s := &Server{
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
	s.SetDefaultStep(defaultStep)
	return s
}

// SetController attaches the controller that serves offset requests.
func (s *Server) SetController(controller OffsetController) {
	s.controllerMu.Lock()
	defer s.controllerMu.Unlock()
	s.controller = controller
}

// SetDefaultStep changes the step used for requests with step 0.
func (s *Server) SetDefaultStep(step uint32) {
	s.defaultStep.Store(min(step, maxStep))
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Server) getController() (OffsetController, error) {
	s.controllerMu.RLock()
	defer s.controllerMu.RUnlock()
	if s.controller == nil {
		return nil, ErrNotReady
	}
	return s.controller, nil
}

// resolveStep validates a requested step and substitutes the default for 0.
func (s *Server) resolveStep(step uint32) (int8, error) {
	if step > maxStep {
		return 0, ErrInvalidStep
	}
	if step == 0 {
		step = s.defaultStep.Load()
	}
	// #nosec G115 -- step is bounded by maxStep, safe for int8
	return int8(step), nil
}

// IncreaseOffset raises the screen offset by step percentage points.
func (s *Server) IncreaseOffset(step uint32) (int32, *dbus.Error) {
	return s.changeOffset("IncreaseOffset", step, func(c OffsetController, n int8) (int8, error) {
		return c.IncreaseOffset(n)
	})
}

// DecreaseOffset lowers the screen offset by step percentage points.
func (s *Server) DecreaseOffset(step uint32) (int32, *dbus.Error) {
	return s.changeOffset("DecreaseOffset", step, func(c OffsetController, n int8) (int8, error) {
		return c.DecreaseOffset(n)
	})
}

// ResetOffset sets the screen offset back to zero.
func (s *Server) ResetOffset() (int32, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for ResetOffset")
		return 0, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	controller, err := s.getController()
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	offset, err := controller.ResetOffset()
	if err != nil {
		log.Error().Err(err).Msg("Failed to reset offset")
		return 0, dbus.MakeFailedError(err)
	}

	s.emitOffsetChanged(offset)
	return int32(offset), nil
}

// GetOffset returns the current screen offset in percentage points.
func (s *Server) GetOffset() (int32, *dbus.Error) {
	controller, err := s.getController()
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	offset, err := controller.Offset()
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Int8("offset", offset).Msg("Got offset")
	return int32(offset), nil
}

func (s *Server) changeOffset(method string, step uint32, apply func(OffsetController, int8) (int8, error)) (int32, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Str("method", method).Msg("Rate limit exceeded")
		return 0, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	n, err := s.resolveStep(step)
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	controller, err := s.getController()
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	offset, err := apply(controller, n)
	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("Failed to change offset")
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Str("method", method).Int8("step", n).Int8("offset", offset).Msg("Changed offset")
	s.emitOffsetChanged(offset)
	return int32(offset), nil
}

func (s *Server) emit(signal string, args ...interface{}) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, args...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}

func (s *Server) emitOffsetChanged(offset int8) {
	s.emit("OffsetChanged", int32(offset))
}

// EmitBrightnessChanged emits the BrightnessChanged signal for a device ("class/name").
func (s *Server) EmitBrightnessChanged(device string, level uint32) {
	s.emit("BrightnessChanged", device, level)
}
