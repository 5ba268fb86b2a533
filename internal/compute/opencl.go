//go:build opencl

package compute

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

type openCL struct{}

func defaultProvider() Provider { return openCL{} }

func (openCL) platforms() ([]*cl.Platform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return platforms, nil
}

func (o openCL) platform(ip int) (*cl.Platform, error) {
	platforms, err := o.platforms()
	if err != nil {
		return nil, err
	}
	if ip < 0 || ip >= len(platforms) {
		return nil, fmt.Errorf("OpenCL platform %d out of range (%d available)", ip, len(platforms))
	}
	return platforms[ip], nil
}

func (o openCL) devices(ip int) ([]*cl.Device, error) {
	p, err := o.platform(ip)
	if err != nil {
		return nil, err
	}
	devices, err := p.GetDevices(cl.DeviceTypeAll)
	if err != nil && err != cl.ErrDeviceNotFound {
		return nil, fmt.Errorf("querying devices on platform %d: %w", ip, err)
	}
	return devices, nil
}

func (o openCL) device(ip, id int) (*cl.Device, error) {
	devices, err := o.devices(ip)
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("OpenCL device %d out of range on platform %d (%d available)", id, ip, len(devices))
	}
	return devices[id], nil
}

func (o openCL) NumPlatforms() (int, error) {
	platforms, err := o.platforms()
	if err != nil {
		return 0, err
	}
	return len(platforms), nil
}

func (o openCL) NumDevices(ip int) (int, error) {
	devices, err := o.devices(ip)
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

func (o openCL) PlatformDescription(ip int) (string, error) {
	p, err := o.platform(ip)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(p.Name()), nil
}

func (o openCL) DeviceDescription(ip, id int) (string, error) {
	d, err := o.device(ip, id)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(d.Name()), nil
}

func (o openCL) Diagnostics() string {
	var b strings.Builder
	platforms, err := o.platforms()
	if err != nil {
		return err.Error()
	}
	if len(platforms) == 0 {
		return "no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`"
	}
	fmt.Fprintf(&b, "Found %d OpenCL platform(s):\n", len(platforms))
	for ip, p := range platforms {
		fmt.Fprintf(&b, "\nPlatform %d: %s\n", ip+1, strings.TrimSpace(p.Name()))
		fmt.Fprintf(&b, "  vendor: %s\n", strings.TrimSpace(p.Vendor()))
		fmt.Fprintf(&b, "  version: %s\n", strings.TrimSpace(p.Version()))
		devices, derr := p.GetDevices(cl.DeviceTypeAll)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			fmt.Fprintf(&b, "  error querying devices: %v\n", derr)
			continue
		}
		fmt.Fprintf(&b, "  found %d device(s):\n", len(devices))
		for id, d := range devices {
			fmt.Fprintf(&b, "  Device %d: %s\n", id+1, strings.TrimSpace(d.Name()))
			fmt.Fprintf(&b, "    vendor: %s\n", strings.TrimSpace(d.Vendor()))
			fmt.Fprintf(&b, "    version: %s\n", strings.TrimSpace(d.Version()))
			fmt.Fprintf(&b, "    driver: %s\n", strings.TrimSpace(d.DriverVersion()))
			fmt.Fprintf(&b, "    compute units: %d\n", d.MaxComputeUnits())
			fmt.Fprintf(&b, "    global memory: %d MiB\n", d.GlobalMemSize()/(1<<20))
		}
	}
	return b.String()
}

func (o openCL) Open(ip, id int) (Device, error) {
	device, err := o.device(ip, id)
	if err != nil {
		return nil, err
	}
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	return &clDevice{
		context: context,
		queue:   queue,
		device:  device,
		name:    strings.TrimSpace(device.Name()),
	}, nil
}

type clDevice struct {
	context *cl.Context
	queue   *cl.CommandQueue
	device  *cl.Device
	name    string
}

func (d *clDevice) Name() string { return d.name }

func (d *clDevice) Build(source, entry string, layout Layout) (Program, error) {
	if d.context == nil {
		return nil, errors.New("OpenCL device has been closed")
	}
	program, err := d.context.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := program.BuildProgram([]*cl.Device{d.device}, ""); err != nil {
		program.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, &BuildError{Log: string(buildErr)}
		}
		return nil, &BuildError{Log: err.Error()}
	}
	kernel, err := program.CreateKernel(entry)
	if err != nil {
		program.Release()
		return nil, fmt.Errorf("creating OpenCL kernel %q: %w", entry, err)
	}
	byteSize := layout.Len() * int(unsafe.Sizeof(float32(0)))
	bufA, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, byteSize)
	if err != nil {
		kernel.Release()
		program.Release()
		return nil, fmt.Errorf("allocating first grid buffer: %w", err)
	}
	bufB, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, byteSize)
	if err != nil {
		bufA.Release()
		kernel.Release()
		program.Release()
		return nil, fmt.Errorf("allocating second grid buffer: %w", err)
	}
	p := &clProgram{
		queue:   d.queue,
		program: program,
		kernel:  kernel,
		bufs:    [2]*cl.MemObject{bufA, bufB},
		layout:  layout,
	}
	if err := kernel.SetArgs(bufA, bufB, int32(layout.X), int32(layout.Y), int32(layout.Z)); err != nil {
		p.Release()
		return nil, fmt.Errorf("setting kernel arguments: %w", err)
	}
	return p, nil
}

func (d *clDevice) Close() error {
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
	return nil
}

type clProgram struct {
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel
	bufs    [2]*cl.MemObject
	cur     int
	layout  Layout
}

func (p *clProgram) Upload(src []float32) error {
	if len(src) != p.layout.Len() {
		return fmt.Errorf("unexpected upload size %d, want %d", len(src), p.layout.Len())
	}
	if _, err := p.queue.EnqueueWriteBufferFloat32(p.bufs[p.cur], true, 0, src, nil); err != nil {
		return fmt.Errorf("writing grid buffer: %w", err)
	}
	return nil
}

func (p *clProgram) Run(steps int, scalars []float32) error {
	for i, v := range scalars {
		if err := p.kernel.SetArgFloat32(5+i, v); err != nil {
			return fmt.Errorf("setting scalar argument %d: %w", i, err)
		}
	}
	global := []int{p.layout.X, p.layout.Y, p.layout.Z}
	for step := 0; step < steps; step++ {
		if err := p.kernel.SetArgBuffer(0, p.bufs[p.cur]); err != nil {
			return fmt.Errorf("binding input buffer: %w", err)
		}
		if err := p.kernel.SetArgBuffer(1, p.bufs[1-p.cur]); err != nil {
			return fmt.Errorf("binding output buffer: %w", err)
		}
		if _, err := p.queue.EnqueueNDRangeKernel(p.kernel, nil, global, nil, nil); err != nil {
			return fmt.Errorf("enqueueing kernel: %w", err)
		}
		p.cur = 1 - p.cur
	}
	if err := p.queue.Finish(); err != nil {
		return fmt.Errorf("waiting for device: %w", err)
	}
	return nil
}

func (p *clProgram) Download(dst []float32) error {
	if len(dst) != p.layout.Len() {
		return fmt.Errorf("unexpected download size %d, want %d", len(dst), p.layout.Len())
	}
	if _, err := p.queue.EnqueueReadBufferFloat32(p.bufs[p.cur], true, 0, dst, nil); err != nil {
		return fmt.Errorf("reading grid buffer: %w", err)
	}
	return nil
}

func (p *clProgram) Release() {
	for i, b := range p.bufs {
		if b != nil {
			b.Release()
			p.bufs[i] = nil
		}
	}
	if p.kernel != nil {
		p.kernel.Release()
		p.kernel = nil
	}
	if p.program != nil {
		p.program.Release()
		p.program = nil
	}
}
