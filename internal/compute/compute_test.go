package compute

import (
	"errors"
	"slices"
	"testing"
)

type listProvider struct {
	platforms []string
	devices   [][]string
}

func (p listProvider) NumPlatforms() (int, error) { return len(p.platforms), nil }

func (p listProvider) NumDevices(ip int) (int, error) { return len(p.devices[ip]), nil }

func (p listProvider) PlatformDescription(ip int) (string, error) { return p.platforms[ip], nil }

func (p listProvider) DeviceDescription(ip, id int) (string, error) { return p.devices[ip][id], nil }

func (p listProvider) Diagnostics() string { return "" }

func (p listProvider) Open(int, int) (Device, error) { return nil, ErrUnavailable }

func TestDescribe(t *testing.T) {
	p := listProvider{
		platforms: []string{"NVIDIA CUDA", "Portable Computing Language"},
		devices:   [][]string{{"GeForce"}, {"cpu-0", "cpu-1"}},
	}
	got, err := Describe(p)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(got))
	}
	if !slices.Equal(got[0], []string{"NVIDIA CUDA : GeForce"}) {
		t.Fatalf("unexpected first platform %v", got[0])
	}
	if !slices.Equal(got[1], []string{"Portable Computing Language : cpu-0", "Portable Computing Language : cpu-1"}) {
		t.Fatalf("unexpected second platform %v", got[1])
	}
}

func TestDescribePropagatesErrors(t *testing.T) {
	if _, err := Describe(unavailableProvider{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type unavailableProvider struct{ listProvider }

func (unavailableProvider) NumPlatforms() (int, error) { return 0, ErrUnavailable }

func TestLayoutLen(t *testing.T) {
	if n := (Layout{X: 30, Y: 25, Z: 20, Channels: 2}).Len(); n != 30000 {
		t.Fatalf("expected 30000 values, got %d", n)
	}
}
