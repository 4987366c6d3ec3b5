// SPDX-License-Identifier: GPL-3.0-only

// Package logind writes backlight levels through the systemd-logind session API,
// which lets an unprivileged session owner change brightness.
package logind

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	// ServiceName is the logind D-Bus service name.
	ServiceName = "org.freedesktop.login1"

	// AutoSessionPath resolves to the session of the calling process.
	AutoSessionPath = "/org/freedesktop/login1/session/auto"

	// SessionInterface is the logind session interface.
	SessionInterface = "org.freedesktop.login1.Session"
)

// Connect opens a connection to the system bus. The caller owns the connection.
func Connect() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return conn, nil
}

// Session issues SetBrightness calls against a logind session object.
// It borrows the underlying connection and never closes it.
type Session struct {
	obj dbus.BusObject
}

// NewSession returns a Session bound to the caller's own logind session.
func NewSession(conn *dbus.Conn) *Session {
	return NewSessionForObject(conn.Object(ServiceName, AutoSessionPath))
}

// NewSessionForObject returns a Session using an already resolved session object.
func NewSessionForObject(obj dbus.BusObject) *Session {
	return &Session{obj: obj}
}

// SetBrightness asks logind to write level to /sys/class/{class}/{name}/brightness.
func (s *Session) SetBrightness(class, name string, level uint32) error {
	call := s.obj.Call(SessionInterface+".SetBrightness", 0, class, name, level)
	if call.Err != nil {
		return fmt.Errorf("logind refused brightness %d for %s/%s: %w", level, class, name, call.Err)
	}
	return nil
}
