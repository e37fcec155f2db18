package render

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

var testFormat = core1_0.FormatB8G8R8A8SRGB

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChains hands out chains of imageCount images and tracks which are still alive.
type fakeChains struct {
	imageCount int
	format     core1_0.Format
	maxExtent  core1_0.Extent2D

	framebufferErr   error
	shortFramebuffer bool

	nextID       int
	liveChains   map[*Chain]int
	liveBuffers  int
	previousSeen []*Chain
}

func newFakeChains() *fakeChains {
	return &fakeChains{
		imageCount: 3,
		format:     testFormat,
		maxExtent:  core1_0.Extent2D{Width: 4096, Height: 4096},
		liveChains: map[*Chain]int{},
	}
}

func (f *fakeChains) NewChain(extent core1_0.Extent2D, previous *Chain) (*Chain, error) {
	if !extentSupported(extent, core1_0.Extent2D{Width: 1, Height: 1}, f.maxExtent) {
		return nil, errors.Wrapf(ErrUnsupportedExtent, "%dx%d", extent.Width, extent.Height)
	}

	f.previousSeen = append(f.previousSeen, previous)
	chain := &Chain{
		Images: make([]core1_0.Image, f.imageCount),
		Format: f.format,
		Extent: extent,
	}
	f.nextID++
	f.liveChains[chain] = f.nextID
	return chain, nil
}

func (f *fakeChains) NewFramebuffers(chain *Chain) ([]Framebuffer, error) {
	if f.framebufferErr != nil {
		return nil, f.framebufferErr
	}

	count := len(chain.Images)
	if f.shortFramebuffer {
		count--
	}

	framebuffers := make([]Framebuffer, count)
	for i := range framebuffers {
		framebuffers[i].Extent = chain.Extent
	}
	f.liveBuffers += count
	return framebuffers, nil
}

func (f *fakeChains) DestroyFramebuffers(framebuffers []Framebuffer) {
	f.liveBuffers -= len(framebuffers)
}

func (f *fakeChains) DestroyChain(chain *Chain) {
	delete(f.liveChains, chain)
}

func TestSwapchainCreate(t *testing.T) {
	chains := newFakeChains()
	manager := NewSwapchainManager(chains, testFormat, discardLogger())

	err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	viewport := manager.Viewport()
	if viewport.X != 0 || viewport.Y != 0 || viewport.Width != 800 || viewport.Height != 600 {
		t.Errorf("got viewport %+v, want 800x600 at the origin", viewport)
	}
	if viewport.MinDepth != 0 || viewport.MaxDepth != 1 {
		t.Errorf("got depth range [%f,%f], want [0,1]", viewport.MinDepth, viewport.MaxDepth)
	}

	if len(manager.Framebuffers()) != len(manager.Chain().Images) {
		t.Errorf("got %d framebuffers for %d images", len(manager.Framebuffers()), len(manager.Chain().Images))
	}

	if err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600}); err == nil {
		t.Errorf("expected a second Create to fail")
	}
}

func TestSwapchainRecreateBeforeCreate(t *testing.T) {
	manager := NewSwapchainManager(newFakeChains(), testFormat, discardLogger())

	if err := manager.Recreate(core1_0.Extent2D{Width: 800, Height: 600}); err == nil {
		t.Errorf("expected Recreate before Create to fail")
	}
}

func TestSwapchainRecreateReplacesEverything(t *testing.T) {
	chains := newFakeChains()
	manager := NewSwapchainManager(chains, testFormat, discardLogger())

	if err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := manager.Chain()

	chains.imageCount = 2
	if err := manager.Recreate(core1_0.Extent2D{Width: 400, Height: 300}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if manager.Chain() == first {
		t.Fatalf("chain was not replaced")
	}
	if chains.previousSeen[1] != first {
		t.Errorf("old chain was not handed to the new one")
	}
	if _, ok := chains.liveChains[first]; ok {
		t.Errorf("old chain was not destroyed")
	}
	if len(chains.liveChains) != 1 {
		t.Errorf("%d chains alive, want 1", len(chains.liveChains))
	}

	viewport := manager.Viewport()
	if viewport.Width != 400 || viewport.Height != 300 {
		t.Errorf("got viewport %vx%v, want 400x300", viewport.Width, viewport.Height)
	}

	if len(manager.Framebuffers()) != 2 || chains.liveBuffers != 2 {
		t.Errorf("got %d framebuffers with %d alive, want 2 of each", len(manager.Framebuffers()), chains.liveBuffers)
	}
	for _, framebuffer := range manager.Framebuffers() {
		if framebuffer.Extent != manager.Chain().Extent {
			t.Errorf("framebuffer extent %+v differs from chain extent", framebuffer.Extent)
		}
	}
}

func TestSwapchainUnsupportedExtentKeepsState(t *testing.T) {
	chains := newFakeChains()
	manager := NewSwapchainManager(chains, testFormat, discardLogger())

	if err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain := manager.Chain()
	framebuffers := manager.Framebuffers()
	viewport := manager.Viewport()

	for _, extent := range []core1_0.Extent2D{
		{Width: 0, Height: 0},
		{Width: 5000, Height: 600},
	} {
		err := manager.Recreate(extent)
		if !errors.Is(err, ErrUnsupportedExtent) {
			t.Errorf("Recreate(%+v) = %v, want ErrUnsupportedExtent", extent, err)
		}
	}

	if manager.Chain() != chain || len(manager.Framebuffers()) != len(framebuffers) || manager.Viewport() != viewport {
		t.Errorf("state changed after an unsupported extent")
	}
	if len(chains.liveChains) != 1 || chains.liveBuffers != 3 {
		t.Errorf("resources changed after an unsupported extent")
	}
}

func TestSwapchainFormatMismatch(t *testing.T) {
	chains := newFakeChains()
	chains.format = core1_0.FormatR8G8B8A8SRGB
	manager := NewSwapchainManager(chains, testFormat, discardLogger())

	err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600})
	if !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("got %v, want ErrFormatMismatch", err)
	}
	if manager.Chain() != nil {
		t.Errorf("mismatched chain was kept")
	}
	if len(chains.liveChains) != 0 {
		t.Errorf("mismatched chain was not destroyed")
	}
}

func TestSwapchainFramebufferFailure(t *testing.T) {
	chains := newFakeChains()
	manager := NewSwapchainManager(chains, testFormat, discardLogger())
	if err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain := manager.Chain()

	chains.shortFramebuffer = true
	if err := manager.Recreate(core1_0.Extent2D{Width: 640, Height: 480}); err == nil {
		t.Errorf("expected an error when framebuffers do not match images")
	}

	chains.shortFramebuffer = false
	chains.framebufferErr = errors.New("out of memory")
	if err := manager.Recreate(core1_0.Extent2D{Width: 640, Height: 480}); err == nil {
		t.Errorf("expected the framebuffer error")
	}

	if manager.Chain() != chain {
		t.Errorf("chain replaced after a failed rebuild")
	}
	if len(chains.liveChains) != 1 || chains.liveBuffers != 3 {
		t.Errorf("got %d chains and %d framebuffers alive, want 1 and 3", len(chains.liveChains), chains.liveBuffers)
	}
}

func TestSwapchainClose(t *testing.T) {
	chains := newFakeChains()
	manager := NewSwapchainManager(chains, testFormat, discardLogger())
	if err := manager.Create(core1_0.Extent2D{Width: 800, Height: 600}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	manager.Close()
	manager.Close()

	if len(chains.liveChains) != 0 || chains.liveBuffers != 0 {
		t.Errorf("resources left after Close")
	}
}
