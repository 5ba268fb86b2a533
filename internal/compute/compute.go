// Package compute abstracts the accelerator that runs compiled reaction
// kernels. The OpenCL implementation is only built with the opencl tag; other
// builds get a provider that reports no platforms.
//
// Kernels built through a Device follow a fixed argument layout:
//
//	0  __global const float* input   (all channels, channel-planar)
//	1  __global float*       output
//	2  const int width
//	3  const int height
//	4  const int depth
//	5… const float scalars, in the order passed to Program.Run
//
// and are launched over a 3D global range of width×height×depth.
package compute

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by every query when the build has no OpenCL support.
var ErrUnavailable = errors.New("compute: OpenCL support is not enabled; rebuild with -tags opencl")

// Layout describes the grid a Program steps.
type Layout struct {
	X, Y, Z  int
	Channels int
}

// Len returns the number of float32 values in one buffer.
func (l Layout) Len() int { return l.X * l.Y * l.Z * l.Channels }

// Provider enumerates platforms and devices and opens them.
type Provider interface {
	NumPlatforms() (int, error)
	NumDevices(platform int) (int, error)
	PlatformDescription(platform int) (string, error)
	DeviceDescription(platform, device int) (string, error)
	Diagnostics() string
	Open(platform, device int) (Device, error)
}

// Device compiles kernels for one accelerator.
type Device interface {
	Name() string
	// Build compiles source and prepares entry to step grids of the given
	// layout. Compilation failures are reported as *BuildError.
	Build(source, entry string, layout Layout) (Program, error)
	Close() error
}

// Program is a compiled kernel with device-resident ping-pong buffers.
type Program interface {
	// Upload copies src into the device's current buffer.
	Upload(src []float32) error
	// Run launches the kernel steps times, swapping buffers after each
	// launch, and blocks until the device has finished.
	Run(steps int, scalars []float32) error
	// Download copies the device's current buffer into dst.
	Download(dst []float32) error
	Release()
}

// BuildError carries the compiler log for a failed build.
type BuildError struct {
	Log string
}

func (e *BuildError) Error() string { return "compute: program build failed" }

// Default returns the provider compiled into this build.
func Default() Provider { return defaultProvider() }

// Describe lists every device as "<platform> : <device>", grouped by platform.
func Describe(p Provider) ([][]string, error) {
	np, err := p.NumPlatforms()
	if err != nil {
		return nil, err
	}
	out := make([][]string, np)
	for ip := 0; ip < np; ip++ {
		pd, err := p.PlatformDescription(ip)
		if err != nil {
			return nil, err
		}
		nd, err := p.NumDevices(ip)
		if err != nil {
			return nil, err
		}
		for id := 0; id < nd; id++ {
			dd, err := p.DeviceDescription(ip, id)
			if err != nil {
				return nil, err
			}
			out[ip] = append(out[ip], fmt.Sprintf("%s : %s", pd, dd))
		}
	}
	return out, nil
}
