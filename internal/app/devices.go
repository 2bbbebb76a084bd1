package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/config"
)

type deviceSetup struct {
	device capture.Device
	detail string
}

func resolveCaptureDevice(cfg config.Config) (deviceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.CaptureMode))
	if mode == "" {
		mode = config.CaptureModeMock
	}
	switch mode {
	case config.CaptureModeMock:
		return deviceSetup{device: capture.NewMockDevice(), detail: "mock camera"}, nil
	case config.CaptureModeDenied:
		return deviceSetup{device: capture.NewDeniedDevice(), detail: "camera permission denied"}, nil
	case config.CaptureModeNone:
		return deviceSetup{device: capture.NoDevice{}, detail: "no camera"}, nil
	default:
		return deviceSetup{}, fmt.Errorf("unsupported CAPTURE_MODE %q", cfg.CaptureMode)
	}
}
