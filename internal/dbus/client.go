// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client calls a running daemon over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus. Close releases the connection.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(ServiceName, ObjectPath)}, nil
}

func (c *Client) call(method string, args ...interface{}) (int32, error) {
	var offset int32
	if err := c.obj.Call(InterfaceName+"."+method, 0, args...).Store(&offset); err != nil {
		return 0, fmt.Errorf("%s failed: %w", method, err)
	}
	return offset, nil
}

// IncreaseOffset raises the offset; a step of 0 uses the daemon's default.
func (c *Client) IncreaseOffset(step uint32) (int32, error) {
	return c.call("IncreaseOffset", step)
}

// DecreaseOffset lowers the offset; a step of 0 uses the daemon's default.
func (c *Client) DecreaseOffset(step uint32) (int32, error) {
	return c.call("DecreaseOffset", step)
}

// ResetOffset sets the offset to zero.
func (c *Client) ResetOffset() (int32, error) {
	return c.call("ResetOffset")
}

// GetOffset returns the current offset.
func (c *Client) GetOffset() (int32, error) {
	return c.call("GetOffset")
}

// Close closes the session bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
