// Package platform detects the host OS. pgobserver only runs on Linux.
package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	apperrors "github.com/psantana5/pgobserver/internal/errors"
)

// Info is what the startup log reports about the host
type Info struct {
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Hostname        string
}

func (i Info) String() string {
	if i.Platform == "" {
		return i.OS
	}
	return fmt.Sprintf("%s %s %s (kernel %s)", i.OS, i.Platform, i.PlatformVersion, i.KernelVersion)
}

// Detect reads host information, falling back to runtime.GOOS when gopsutil cannot
func Detect(ctx context.Context) Info {
	h, err := host.InfoWithContext(ctx)
	if err != nil || h == nil || h.OS == "" {
		return Info{OS: runtime.GOOS}
	}
	return Info{
		OS:              h.OS,
		Platform:        h.Platform,
		PlatformVersion: h.PlatformVersion,
		KernelVersion:   h.KernelVersion,
		Hostname:        h.Hostname,
	}
}

// IsLinux reports whether the OS is Linux-family
func (i Info) IsLinux() bool {
	return strings.Contains(strings.ToLower(i.OS), "linux")
}

// Check returns ErrUnsupportedPlatform unless info is Linux-family
func Check(info Info) error {
	if !info.IsLinux() {
		return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedPlatform, info.OS)
	}
	return nil
}
