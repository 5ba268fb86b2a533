//go:build !opencl

package compute

type unavailable struct{}

func defaultProvider() Provider { return unavailable{} }

func (unavailable) NumPlatforms() (int, error) { return 0, ErrUnavailable }

func (unavailable) NumDevices(int) (int, error) { return 0, ErrUnavailable }

func (unavailable) PlatformDescription(int) (string, error) { return "", ErrUnavailable }

func (unavailable) DeviceDescription(int, int) (string, error) { return "", ErrUnavailable }

func (unavailable) Diagnostics() string { return ErrUnavailable.Error() }

func (unavailable) Open(int, int) (Device, error) { return nil, ErrUnavailable }
