package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var (
	// ErrNoSuitableAccelerator is returned when no physical device can present to the surface.
	ErrNoSuitableAccelerator = errors.New("no suitable accelerator")

	// ErrUnsupportedExtent is returned when the surface cannot build a chain of the requested
	// size, usually while the user is dragging the window edge. Retry on the next frame.
	ErrUnsupportedExtent = errors.New("unsupported swapchain extent")

	// ErrFormatMismatch means the chain format drifted away from the render pass format.
	ErrFormatMismatch = errors.New("swapchain format does not match render pass")

	// ErrOutOfDate means the chain no longer matches the surface and must be rebuilt.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrDeviceLost means the logical device is gone.
	ErrDeviceLost = errors.New("device lost")
)

// classify maps the result codes the frame loop cares about onto sentinels.
func classify(res common.VkResult, err error, op string) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(ErrOutOfDate, op)
	case core1_0.VKErrorDeviceLost:
		return errors.Wrap(ErrDeviceLost, op)
	}

	if err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}
