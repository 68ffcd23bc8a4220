package audio

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tonelab/pitchtrack/internal/errors"
	"github.com/tonelab/pitchtrack/internal/logging"
)

// Context wraps the malgo audio context. It is created once per session
// and owns device enumeration and capture device setup.
type Context struct {
	mctx    *malgo.AllocatedContext
	backend malgo.Backend
	logger  *slog.Logger
}

// NewContext initializes the platform audio context.
func NewContext(logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = logging.ForService("audio")
	}
	backend := platformBackend()

	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Build()
	}

	return &Context{mctx: mctx, backend: backend, logger: logger}, nil
}

// SupportsCallbackDelivery reports whether the active backend can run
// frame assembly on its own audio thread.
func (c *Context) SupportsCallbackDelivery() bool {
	return c.backend != malgo.BackendNull
}

// Close uninitializes the audio context. Best effort; teardown errors
// are logged, not returned.
func (c *Context) Close() {
	if c == nil || c.mctx == nil {
		return
	}
	if err := c.mctx.Uninit(); err != nil {
		c.logger.Debug("audio context uninit failed", "error", err)
	}
	c.mctx.Free()
	c.mctx = nil
}

// openCaptureDevice finds the requested capture device and initializes
// it with the given data callback. The device is returned stopped.
func (c *Context) openCaptureDevice(cfg CaptureConfig, onData func([]byte), onStop func()) (*malgo.Device, string, error) {
	infos, err := c.mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, "", errors.New(err).
			Component("audio").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	info, err := selectCaptureDevice(infos, cfg.Device)
	if err != nil {
		return nil, "", err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.HopSize)
	deviceConfig.Alsa.NoMMap = 1
	if info != nil {
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if len(input) > 0 {
				onData(input)
			}
		},
		Stop: onStop,
	}

	device, err := malgo.InitDevice(c.mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, "", errors.New(err).
			Component("audio").
			Category(errors.CategoryDevice).
			Context("operation", "init_device").
			Context("device", cfg.Device).
			Build()
	}

	name := cfg.Device
	if info != nil {
		name = info.Name()
	}
	return device, name, nil
}

// selectCaptureDevice matches the configured device against the
// enumerated ones. An empty setting selects the system default; nil is
// returned in that case so malgo picks its own default.
func selectCaptureDevice(infos []malgo.DeviceInfo, device string) (*malgo.DeviceInfo, error) {
	if device == "" || device == "default" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		return nil, nil
	}

	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			continue
		}
		if decodedID == device || strings.Contains(infos[i].Name(), device) {
			return &infos[i], nil
		}
	}

	return nil, errors.Newf("no capture device matches %q", device).
		Component("audio").
		Category(errors.CategoryDevice).
		Context("device", device).
		Build()
}
