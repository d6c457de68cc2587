package playback

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

const (
	defaultPeriodFrames = 512
	defaultPeriods      = 2
)

// OutputConfig selects the malgo backend and device.
type OutputConfig struct {
	Backend      string // one of the conf.Backend* names; empty means auto
	Device       string // device name or decoded ID; empty uses the default device
	PeriodFrames int
	Logger       logger.Logger
}

// backendsFor maps a configured backend name to the malgo backend list.
func backendsFor(name string) ([]malgo.Backend, error) {
	switch strings.ToLower(name) {
	case "", conf.BackendAuto:
		switch runtime.GOOS {
		case "linux":
			return []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}, nil
		case "windows":
			return []malgo.Backend{malgo.BackendWasapi}, nil
		case "darwin":
			return []malgo.Backend{malgo.BackendCoreaudio}, nil
		default:
			return nil, nil
		}
	case conf.BackendALSA:
		return []malgo.Backend{malgo.BackendAlsa}, nil
	case conf.BackendPulseAudio:
		return []malgo.Backend{malgo.BackendPulseaudio}, nil
	case conf.BackendWASAPI:
		return []malgo.Backend{malgo.BackendWasapi}, nil
	case conf.BackendCoreAudio:
		return []malgo.Backend{malgo.BackendCoreaudio}, nil
	case conf.BackendNull:
		return []malgo.Backend{malgo.BackendNull}, nil
	default:
		return nil, errors.New(fmt.Errorf("%w: %q", ErrUnknownBackend, name)).
			Component("playback").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// NewMalgoOutput returns an OutputFactory that opens float32 playback
// devices through miniaudio.
func NewMalgoOutput(cfg OutputConfig) OutputFactory {
	if cfg.PeriodFrames <= 0 {
		cfg.PeriodFrames = defaultPeriodFrames
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return func(format Format, src Source) (Device, error) {
		return openMalgo(cfg, format, src)
	}
}

type malgoDevice struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	closed  bool
	latency int
}

func openMalgo(cfg OutputConfig, format Format, src Source) (*malgoDevice, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, outputErr(fmt.Errorf("invalid output format %d Hz %d ch", format.SampleRate, format.Channels), "validate_format", cfg)
	}

	backends, err := backendsFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, outputErr(err, "init_context", cfg)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Periods = defaultPeriods
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" && cfg.Device != "default" {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			_ = ctx.Uninit()
			ctx.Free()
			return nil, outputErr(err, "enumerate_devices", cfg)
		}
		idx, err := selectDevice(entriesOf(infos), cfg.Device)
		if err != nil {
			_ = ctx.Uninit()
			ctx.Free()
			return nil, outputErr(err, "select_device", cfg)
		}
		deviceConfig.Playback.DeviceID = infos[idx].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			if len(pOutput) < 4 {
				return
			}
			out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutput[0])), len(pOutput)/4)
			src.Fill(out, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, outputErr(err, "init_device", cfg)
	}

	log.Info("audio output opened",
		logger.String("backend", cfg.Backend),
		logger.String("device", cfg.Device),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("channels", format.Channels),
		logger.Int("period_frames", cfg.PeriodFrames))

	return &malgoDevice{
		ctx:     ctx,
		device:  device,
		latency: cfg.PeriodFrames * defaultPeriods,
	}, nil
}

func (d *malgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.running {
		return nil
	}
	if err := d.device.Start(); err != nil {
		return deviceErr(err, "start_device")
	}
	d.running = true
	return nil
}

func (d *malgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *malgoDevice) stopLocked() error {
	if d.closed || !d.running {
		return nil
	}
	d.running = false
	if err := d.device.Stop(); err != nil {
		return deviceErr(err, "stop_device")
	}
	return nil
}

// Clear restarts a running device, which discards its queued periods.
func (d *malgoDevice) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.running {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		d.running = false
		return deviceErr(err, "clear_device")
	}
	if err := d.device.Start(); err != nil {
		d.running = false
		return deviceErr(err, "clear_device")
	}
	return nil
}

func (d *malgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	stopErr := d.stopLocked()
	d.closed = true
	d.device.Uninit()
	err := d.ctx.Uninit()
	d.ctx.Free()
	if err != nil {
		return deviceErr(err, "uninit_context")
	}
	return stopErr
}

func (d *malgoDevice) LatencyFrames() int { return d.latency }

// DeviceInfo describes a playback device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
}

// ListDevices enumerates the playback devices of backend.
func ListDevices(backend string) ([]DeviceInfo, error) {
	backends, err := backendsFor(backend)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, outputErr(err, "init_context", OutputConfig{Backend: backend})
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, outputErr(err, "enumerate_devices", OutputConfig{Backend: backend})
	}

	entries := entriesOf(infos)
	devices := make([]DeviceInfo, 0, len(entries))
	for i, e := range entries {
		// Skip the discard/null device
		if strings.Contains(e.name, "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{Index: i, Name: e.name, ID: e.id, IsDefault: e.isDefault})
	}
	return devices, nil
}

type deviceEntry struct {
	name      string
	id        string
	isDefault bool
}

func entriesOf(infos []malgo.DeviceInfo) []deviceEntry {
	entries := make([]deviceEntry, len(infos))
	for i := range infos {
		id := infos[i].ID.String()
		if decoded, err := hexToASCII(id); err == nil {
			id = decoded
		}
		entries[i] = deviceEntry{
			name:      infos[i].Name(),
			id:        id,
			isDefault: infos[i].IsDefault == 1,
		}
	}
	return entries
}

// selectDevice finds a device by exact name, decoded ID, then partial name.
// An empty name or "default" picks the default device, falling back to the
// first one.
func selectDevice(entries []deviceEntry, name string) (int, error) {
	if name == "" || name == "default" {
		for i := range entries {
			if entries[i].isDefault {
				return i, nil
			}
		}
		if len(entries) > 0 {
			return 0, nil
		}
	}

	for i := range entries {
		if entries[i].name == name {
			return i, nil
		}
	}
	for i := range entries {
		if entries[i].id == name {
			return i, nil
		}
	}
	for i := range entries {
		if strings.Contains(strings.ToLower(entries[i].name), strings.ToLower(name)) {
			return i, nil
		}
	}

	return -1, fmt.Errorf("%w: %q among %d devices", ErrDeviceNotFound, name, len(entries))
}

func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func outputErr(err error, op string, cfg OutputConfig) error {
	return errors.New(fmt.Errorf("%w: %w", ErrOutputOpen, err)).
		Component("playback").
		Category(errors.CategoryAudioOutput).
		Context("operation", op).
		Context("backend", cfg.Backend).
		Context("os", runtime.GOOS).
		Build()
}

func deviceErr(err error, op string) error {
	return errors.New(err).
		Component("playback").
		Category(errors.CategoryAudioOutput).
		Context("operation", op).
		Build()
}
