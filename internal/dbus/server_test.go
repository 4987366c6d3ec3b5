// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeController implements OffsetController for testing.
type fakeController struct {
	mu     sync.Mutex
	offset int8
	steps  []int8
	err    error
}

func (f *fakeController) IncreaseOffset(step int8) (int8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.steps = append(f.steps, step)
	f.offset += step
	return f.offset, nil
}

func (f *fakeController) DecreaseOffset(step int8) (int8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.steps = append(f.steps, -step)
	f.offset -= step
	return f.offset, nil
}

func (f *fakeController) ResetOffset() (int8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.offset = 0
	return 0, nil
}

func (f *fakeController) Offset() (int8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset, f.err
}

func newTestServer(controller OffsetController) *Server {
	server := NewServer(5)
	server.rateLimiter = rate.NewLimiter(rate.Inf, 0)
	server.SetController(controller)
	return server
}

func TestNewServer(t *testing.T) {
	server := NewServer(5)
	assert.NotNil(t, server)
	assert.Equal(t, uint32(5), server.defaultStep.Load())
	assert.Nil(t, server.controller)
}

func TestServer_IncreaseOffset(t *testing.T) {
	controller := &fakeController{}
	server := newTestServer(controller)

	offset, err := server.IncreaseOffset(10)
	require.Nil(t, err)
	assert.Equal(t, int32(10), offset)
	assert.Equal(t, []int8{10}, controller.steps)
}

func TestServer_DecreaseOffset(t *testing.T) {
	controller := &fakeController{offset: 5}
	server := newTestServer(controller)

	offset, err := server.DecreaseOffset(15)
	require.Nil(t, err)
	assert.Equal(t, int32(-10), offset)
}

func TestServer_ZeroStepUsesDefault(t *testing.T) {
	controller := &fakeController{}
	server := newTestServer(controller)

	_, err := server.IncreaseOffset(0)
	require.Nil(t, err)

	server.SetDefaultStep(8)
	_, err = server.DecreaseOffset(0)
	require.Nil(t, err)

	assert.Equal(t, []int8{5, -8}, controller.steps)
}

func TestServer_SetDefaultStep_Clamps(t *testing.T) {
	server := NewServer(500)
	assert.Equal(t, uint32(maxStep), server.defaultStep.Load())
}

func TestServer_InvalidStep(t *testing.T) {
	controller := &fakeController{}
	server := newTestServer(controller)

	_, err := server.IncreaseOffset(101)
	assert.NotNil(t, err)
	_, err = server.DecreaseOffset(1000)
	assert.NotNil(t, err)
	assert.Empty(t, controller.steps)
}

func TestServer_ResetAndGetOffset(t *testing.T) {
	controller := &fakeController{offset: -20}
	server := newTestServer(controller)

	offset, err := server.GetOffset()
	require.Nil(t, err)
	assert.Equal(t, int32(-20), offset)

	offset, err = server.ResetOffset()
	require.Nil(t, err)
	assert.Equal(t, int32(0), offset)
	assert.Equal(t, int8(0), controller.offset)
}

func TestServer_ControllerError(t *testing.T) {
	server := newTestServer(&fakeController{err: errors.New("loop stopped")})

	_, err := server.IncreaseOffset(5)
	assert.NotNil(t, err)
	_, err = server.ResetOffset()
	assert.NotNil(t, err)
	_, err = server.GetOffset()
	assert.NotNil(t, err)
}

func TestServer_NotReady(t *testing.T) {
	server := NewServer(5)

	_, err := server.IncreaseOffset(5)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), ErrNotReady.Error())
	_, err = server.GetOffset()
	assert.NotNil(t, err)
}

func TestServer_Constants(t *testing.T) {
	assert.Equal(t, "io.github.shini4i.AlsBrightness", ServiceName)
	assert.Equal(t, "/io/github/shini4i/AlsBrightness", ObjectPath)
	assert.Contains(t, IntrospectXML, `<method name="IncreaseOffset">`)
	assert.Contains(t, IntrospectXML, `<signal name="BrightnessChanged">`)
}

func TestServer_RateLimiting(t *testing.T) {
	controller := &fakeController{}
	server := NewServer(1)
	server.SetController(controller)

	var limited int
	for range rateLimitBurst + 10 {
		if _, err := server.IncreaseOffset(1); err != nil {
			limited++
		}
	}

	assert.Positive(t, limited, "requests beyond the burst should be rejected")
	assert.GreaterOrEqual(t, len(controller.steps), rateLimitBurst)
}

func TestServer_EmitWithoutConnection(t *testing.T) {
	server := NewServer(5)
	assert.NotPanics(t, func() {
		server.EmitBrightnessChanged("backlight/intel_backlight", 350)
		server.emitOffsetChanged(10)
	})
	assert.NoError(t, server.Stop())
}

func TestServer_ConcurrentStopAndEmit(t *testing.T) {
	server := NewServer(5)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			server.EmitBrightnessChanged("leds/kbd", 1)
		}()
		go func() {
			defer wg.Done()
			_ = server.Stop()
		}()
	}
	wg.Wait()
}
