package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// surfaceChains is the ChainFactory backed by the device's presentation surface.
type surfaceChains struct {
	device        *Device
	renderPass    core1_0.RenderPass
	preferMailbox bool
}

// NewChainFactory returns a ChainFactory that presents to the device surface and builds
// framebuffers compatible with renderPass.
func NewChainFactory(device *Device, renderPass core1_0.RenderPass, preferMailbox bool) ChainFactory {
	return &surfaceChains{
		device:        device,
		renderPass:    renderPass,
		preferMailbox: preferMailbox,
	}
}

// extentSupported reports whether a chain of extent fits inside the surface limits. A zero
// area extent (a minimised window) never does.
func extentSupported(extent, minExtent, maxExtent core1_0.Extent2D) bool {
	if extent.Width <= 0 || extent.Height <= 0 {
		return false
	}

	return extent.Width >= minExtent.Width && extent.Width <= maxExtent.Width &&
		extent.Height >= minExtent.Height && extent.Height <= maxExtent.Height
}

// firstCompositeAlpha returns the lowest supported composite alpha bit.
func firstCompositeAlpha(supported khr_surface.CompositeAlphaFlags) (khr_surface.CompositeAlphaFlags, bool) {
	for _, mode := range []khr_surface.CompositeAlphaFlags{
		khr_surface.CompositeAlphaOpaque,
		khr_surface.CompositeAlphaPreMultiplied,
		khr_surface.CompositeAlphaPostMultiplied,
		khr_surface.CompositeAlphaInherit,
	} {
		if supported&mode != 0 {
			return mode, true
		}
	}

	return 0, false
}

// choosePresentMode returns FIFO, which every surface supports, unless mailbox is preferred
// and available.
func choosePresentMode(available []khr_surface.PresentMode, preferMailbox bool) khr_surface.PresentMode {
	if preferMailbox {
		for _, presentMode := range available {
			if presentMode == khr_surface.PresentModeMailbox {
				return presentMode
			}
		}
	}

	return khr_surface.PresentModeFIFO
}

func (s *surfaceChains) NewChain(extent core1_0.Extent2D, previous *Chain) (*Chain, error) {
	capabilities, err := s.device.SurfaceCapabilities()
	if err != nil {
		return nil, err
	}

	if !extentSupported(extent, capabilities.MinImageExtent, capabilities.MaxImageExtent) {
		return nil, errors.Wrapf(ErrUnsupportedExtent, "%dx%d outside %dx%d..%dx%d",
			extent.Width, extent.Height,
			capabilities.MinImageExtent.Width, capabilities.MinImageExtent.Height,
			capabilities.MaxImageExtent.Width, capabilities.MaxImageExtent.Height)
	}

	surfaceFormat, err := s.device.SurfaceFormat()
	if err != nil {
		return nil, err
	}

	compositeAlpha, ok := firstCompositeAlpha(capabilities.SupportedCompositeAlpha)
	if !ok {
		return nil, errors.New("surface supports no composite alpha mode")
	}

	presentModes, err := s.device.PresentModes()
	if err != nil {
		return nil, err
	}

	createInfo := khr_swapchain.SwapchainCreateInfo{
		Surface: s.device.Surface,

		MinImageCount:    capabilities.MinImageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: compositeAlpha,
		PresentMode:    choosePresentMode(presentModes, s.preferMailbox),
		Clipped:        true,
	}
	if previous != nil {
		createInfo.OldSwapchain = previous.Handle
	}

	swapchain, _, err := s.device.SwapchainExtension.CreateSwapchain(nil, createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	images, _, err := s.device.SwapchainExtension.GetSwapchainImages(swapchain)
	if err != nil {
		s.device.SwapchainExtension.DestroySwapchain(swapchain, nil)
		return nil, errors.Wrap(err, "swapchain images")
	}

	return &Chain{
		Handle:         swapchain,
		Images:         images,
		Format:         surfaceFormat.Format,
		Extent:         extent,
		CompositeAlpha: compositeAlpha,
	}, nil
}

func (s *surfaceChains) NewFramebuffers(chain *Chain) ([]Framebuffer, error) {
	framebuffers := make([]Framebuffer, 0, len(chain.Images))
	for _, image := range chain.Images {
		view, _, err := s.device.Driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   chain.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			s.destroy(framebuffers)
			return nil, errors.Wrap(err, "image view")
		}

		framebuffer, _, err := s.device.Driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{view},
			Width:       chain.Extent.Width,
			Height:      chain.Extent.Height,
		})
		if err != nil {
			s.device.Driver.DestroyImageView(view, nil)
			s.destroy(framebuffers)
			return nil, errors.Wrap(err, "framebuffer")
		}

		framebuffers = append(framebuffers, Framebuffer{
			Handle: framebuffer,
			View:   view,
			Extent: chain.Extent,
		})
	}

	return framebuffers, nil
}

// DestroyFramebuffers waits for the device first: the last frame may still be rendering
// into them.
func (s *surfaceChains) DestroyFramebuffers(framebuffers []Framebuffer) {
	err := s.device.WaitIdle()
	if err != nil {
		s.device.logger.Warn("wait before destroying framebuffers", slog.Any("err", err))
	}

	s.destroy(framebuffers)
}

func (s *surfaceChains) destroy(framebuffers []Framebuffer) {
	for _, framebuffer := range framebuffers {
		s.device.Driver.DestroyFramebuffer(framebuffer.Handle, nil)
		s.device.Driver.DestroyImageView(framebuffer.View, nil)
	}
}

func (s *surfaceChains) DestroyChain(chain *Chain) {
	if chain.Handle.Initialized() {
		s.device.SwapchainExtension.DestroySwapchain(chain.Handle, nil)
	}
}
