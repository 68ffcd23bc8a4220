package audio

import (
	"encoding/hex"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes an audio capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// ListCaptureDevices enumerates the available capture devices. It never
// fails to the caller: when the platform refuses enumeration (no audio
// stack, no permission) it returns an empty list.
func ListCaptureDevices(ctx *Context) []DeviceInfo {
	owned := false
	if ctx == nil {
		var err error
		ctx, err = NewContext(nil)
		if err != nil {
			return nil
		}
		owned = true
	}
	if owned {
		defer ctx.Close()
	}

	infos, err := ctx.mctx.Devices(malgo.Capture)
	if err != nil {
		ctx.logger.Debug("device enumeration failed", "error", err)
		return nil
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			ctx.logger.Debug("cannot decode device id", "index", i, "error", err)
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
