package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Chain is one swapchain instance and the images it owns.
type Chain struct {
	Handle         khr_swapchain.Swapchain
	Images         []core1_0.Image
	Format         core1_0.Format
	Extent         core1_0.Extent2D
	CompositeAlpha khr_surface.CompositeAlphaFlags
}

// Framebuffer binds one chain image, through its view, as the only colour attachment.
type Framebuffer struct {
	Handle core1_0.Framebuffer
	View   core1_0.ImageView
	Extent core1_0.Extent2D
}

// ChainFactory builds and tears down chains for a single surface.
type ChainFactory interface {
	// NewChain builds a chain of the given extent. previous, if non-nil, is handed to the
	// presentation engine for reuse. It returns ErrUnsupportedExtent when the surface
	// cannot take the extent right now.
	NewChain(extent core1_0.Extent2D, previous *Chain) (*Chain, error)
	NewFramebuffers(chain *Chain) ([]Framebuffer, error)
	DestroyFramebuffers(framebuffers []Framebuffer)
	DestroyChain(chain *Chain)
}

// SwapchainManager owns the current chain, its framebuffers and the viewport derived from
// them. The three are always replaced together.
type SwapchainManager struct {
	factory ChainFactory
	format  core1_0.Format
	logger  *slog.Logger

	chain        *Chain
	framebuffers []Framebuffer
	viewport     core1_0.Viewport
}

// NewSwapchainManager returns a manager whose chains must match the render pass format.
func NewSwapchainManager(factory ChainFactory, renderPassFormat core1_0.Format, logger *slog.Logger) *SwapchainManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &SwapchainManager{
		factory: factory,
		format:  renderPassFormat,
		logger:  logger,
	}
}

// Create builds the first chain. Failures are fatal to the caller.
func (m *SwapchainManager) Create(extent core1_0.Extent2D) error {
	if m.chain != nil {
		return errors.New("swapchain already created")
	}

	return errors.Wrap(m.build(extent), "create swapchain")
}

// Recreate replaces the chain and framebuffers with ones of the new extent. On
// ErrUnsupportedExtent the current chain is left untouched.
func (m *SwapchainManager) Recreate(extent core1_0.Extent2D) error {
	if m.chain == nil {
		return errors.New("recreate before create")
	}

	return errors.Wrap(m.build(extent), "recreate swapchain")
}

func (m *SwapchainManager) build(extent core1_0.Extent2D) error {
	chain, err := m.factory.NewChain(extent, m.chain)
	if err != nil {
		return err
	}

	if chain.Format != m.format {
		m.factory.DestroyChain(chain)
		return errors.Wrapf(ErrFormatMismatch, "chain %s, render pass %s", chain.Format, m.format)
	}

	framebuffers, err := m.factory.NewFramebuffers(chain)
	if err != nil {
		m.factory.DestroyChain(chain)
		return errors.Wrap(err, "framebuffers")
	}

	if len(framebuffers) != len(chain.Images) {
		m.factory.DestroyFramebuffers(framebuffers)
		m.factory.DestroyChain(chain)
		return errors.Errorf("%d framebuffers for %d images", len(framebuffers), len(chain.Images))
	}

	m.release()
	m.chain = chain
	m.framebuffers = framebuffers
	m.viewport = core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(chain.Extent.Width),
		Height:   float32(chain.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}

	m.logger.Debug("swapchain built",
		slog.Int("width", chain.Extent.Width),
		slog.Int("height", chain.Extent.Height),
		slog.Int("images", len(chain.Images)))
	return nil
}

func (m *SwapchainManager) release() {
	if len(m.framebuffers) > 0 {
		m.factory.DestroyFramebuffers(m.framebuffers)
		m.framebuffers = nil
	}

	if m.chain != nil {
		m.factory.DestroyChain(m.chain)
		m.chain = nil
	}
}

func (m *SwapchainManager) Chain() *Chain {
	return m.chain
}

func (m *SwapchainManager) Framebuffers() []Framebuffer {
	return m.framebuffers
}

func (m *SwapchainManager) Viewport() core1_0.Viewport {
	return m.viewport
}

// Close destroys the current chain and its framebuffers.
func (m *SwapchainManager) Close() {
	m.release()
}
