package render

import (
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestExtentSupported(t *testing.T) {
	minExtent := core1_0.Extent2D{Width: 1, Height: 1}
	maxExtent := core1_0.Extent2D{Width: 4096, Height: 4096}

	tests := []struct {
		name   string
		extent core1_0.Extent2D
		want   bool
	}{
		{"initial", core1_0.Extent2D{Width: 800, Height: 600}, true},
		{"minimum", minExtent, true},
		{"maximum", maxExtent, true},
		{"minimised", core1_0.Extent2D{Width: 0, Height: 0}, false},
		{"zero height", core1_0.Extent2D{Width: 800, Height: 0}, false},
		{"too wide", core1_0.Extent2D{Width: 4097, Height: 600}, false},
		{"too tall", core1_0.Extent2D{Width: 800, Height: 5000}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := extentSupported(test.extent, minExtent, maxExtent); got != test.want {
				t.Errorf("extentSupported(%+v) = %v, want %v", test.extent, got, test.want)
			}
		})
	}
}

func TestFirstCompositeAlpha(t *testing.T) {
	mode, ok := firstCompositeAlpha(khr_surface.CompositeAlphaInherit | khr_surface.CompositeAlphaPreMultiplied)
	if !ok || mode != khr_surface.CompositeAlphaPreMultiplied {
		t.Errorf("got %v, want pre-multiplied", mode)
	}

	mode, ok = firstCompositeAlpha(khr_surface.CompositeAlphaOpaque | khr_surface.CompositeAlphaInherit)
	if !ok || mode != khr_surface.CompositeAlphaOpaque {
		t.Errorf("got %v, want opaque", mode)
	}

	_, ok = firstCompositeAlpha(0)
	if ok {
		t.Errorf("expected no composite alpha from an empty set")
	}
}

func TestChoosePresentMode(t *testing.T) {
	available := []khr_surface.PresentMode{khr_surface.PresentModeImmediate, khr_surface.PresentModeMailbox, khr_surface.PresentModeFIFO}

	if got := choosePresentMode(available, false); got != khr_surface.PresentModeFIFO {
		t.Errorf("got %v without a preference, want FIFO", got)
	}

	if got := choosePresentMode(available, true); got != khr_surface.PresentModeMailbox {
		t.Errorf("got %v, want mailbox", got)
	}

	if got := choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO}, true); got != khr_surface.PresentModeFIFO {
		t.Errorf("got %v, want the FIFO fallback", got)
	}
}
