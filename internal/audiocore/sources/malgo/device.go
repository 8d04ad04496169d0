package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string // decoded backend id, e.g. ":1,0" for ALSA hw devices
	IsDefault bool
}

// backendForPlatform returns the malgo backend for the current OS.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %q", runtime.GOOS).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudio).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// ListDevices returns the capture devices of the platform backend.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_devices").
			Build()
	}

	return toDeviceInfos(infos), nil
}

func toDeviceInfos(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// miniaudio's null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// matchDevice picks a device for query and returns its Index. An empty
// query or "default" selects the system default, then the first device.
// Otherwise exact name, decoded id and name substring are tried in order.
func matchDevice(devices []DeviceInfo, query string) (int, error) {
	if len(devices) == 0 {
		return -1, errors.Newf("no audio capture devices found").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Build()
	}

	if query == "" || query == "default" || query == "sysdefault" {
		for _, d := range devices {
			if d.IsDefault {
				return d.Index, nil
			}
		}
		return devices[0].Index, nil
	}

	for _, d := range devices {
		if d.Name == query || d.ID == query {
			return d.Index, nil
		}
	}
	lower := strings.ToLower(query)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			return d.Index, nil
		}
	}

	return -1, errors.Newf("no audio device matches %q", query).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("device_name", query).
		Context("available_devices", len(devices)).
		Build()
}

// decodeID turns the hex encoded backend id into text, falling back to
// the raw id when it is not hex.
func decodeID(id string) string {
	decoded, err := hex.DecodeString(id)
	if err != nil {
		return id
	}
	return strings.TrimRight(string(decoded), "\x00")
}
