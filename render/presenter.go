package render

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// VulkanPresenter implements Presenter on the device queue. Each frame gets a fresh
// one-time command buffer and fence; semaphore pairs are recycled once their frame retires.
type VulkanPresenter struct {
	device   *Device
	pipeline *Pipeline
	geometry *GeometryBuffers
	logger   *slog.Logger

	commandPool core1_0.CommandPool
	ops         frameOps
	spare       []frameSync
}

type frameSync struct {
	available core1_0.Semaphore
	finished  core1_0.Semaphore
}

// frameOps is the part of the device that retiring a frame needs.
type frameOps interface {
	// fenceSignalled waits up to timeout and reports whether the fence is signalled.
	fenceSignalled(fence core1_0.Fence, timeout time.Duration) (bool, error)
	destroyFence(fence core1_0.Fence)
	freeCommands(commands core1_0.CommandBuffer)
	destroySync(sync frameSync)
}

type deviceFrameOps struct {
	driver core1_0.CoreDeviceDriver
}

func (o deviceFrameOps) fenceSignalled(fence core1_0.Fence, timeout time.Duration) (bool, error) {
	res, err := o.driver.WaitForFences(true, timeout, fence)
	if err != nil {
		return false, classify(res, err, "wait for frame fence")
	}
	return res != core1_0.VKTimeout, nil
}

func (o deviceFrameOps) destroyFence(fence core1_0.Fence) {
	o.driver.DestroyFence(fence, nil)
}

func (o deviceFrameOps) freeCommands(commands core1_0.CommandBuffer) {
	o.driver.FreeCommandBuffers(commands)
}

func (o deviceFrameOps) destroySync(sync frameSync) {
	o.driver.DestroySemaphore(sync.available, nil)
	o.driver.DestroySemaphore(sync.finished, nil)
}

func NewPresenter(device *Device, pipeline *Pipeline, geometry *GeometryBuffers, logger *slog.Logger) (*VulkanPresenter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, _, err := device.Driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: device.Accelerator.QueueFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &VulkanPresenter{
		device:      device,
		pipeline:    pipeline,
		geometry:    geometry,
		logger:      logger,
		commandPool: pool,
		ops:         deviceFrameOps{driver: device.Driver},
	}, nil
}

func (p *VulkanPresenter) takeSync() (frameSync, error) {
	if n := len(p.spare); n > 0 {
		sync := p.spare[n-1]
		p.spare = p.spare[:n-1]
		return sync, nil
	}

	available, _, err := p.device.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return frameSync{}, errors.Wrap(err, "create semaphore")
	}

	finished, _, err := p.device.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		p.device.Driver.DestroySemaphore(available, nil)
		return frameSync{}, errors.Wrap(err, "create semaphore")
	}

	return frameSync{available: available, finished: finished}, nil
}

// discardSync destroys a pair whose signal state is unknown. Only used on failure paths.
func (p *VulkanPresenter) discardSync(sync frameSync) {
	err := p.device.WaitIdle()
	if err != nil {
		p.logger.Warn("wait before discarding semaphores", slog.Any("err", err))
	}

	p.ops.destroySync(sync)
}

func (p *VulkanPresenter) Acquire(chain *Chain) (Acquisition, error) {
	sync, err := p.takeSync()
	if err != nil {
		return Acquisition{}, err
	}

	imageIndex, res, err := p.device.SwapchainExtension.AcquireNextImage(chain.Handle, common.NoTimeout, &sync.available, nil)
	if err != nil || res == khr_swapchain.VKErrorOutOfDate {
		// Nothing was acquired, so nothing will signal the semaphore
		p.spare = append(p.spare, sync)
		return Acquisition{}, classify(res, err, "acquire next image")
	}

	return Acquisition{
		ImageIndex: imageIndex,
		Suboptimal: res == khr_swapchain.VKSuboptimal,
		Available:  sync.available,
		Finished:   sync.finished,
	}, nil
}

func (p *VulkanPresenter) Record(framebuffer Framebuffer, viewport core1_0.Viewport) (core1_0.CommandBuffer, error) {
	driver := p.device.Driver

	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, errors.Wrap(err, "allocate command buffer")
	}
	buffer := buffers[0]

	_, err = driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		driver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "begin command buffer")
	}

	err = driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  p.pipeline.RenderPass,
			Framebuffer: framebuffer.Handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: framebuffer.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
			},
		})
	if err != nil {
		driver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "begin render pass")
	}

	driver.CmdSetViewport(buffer, viewport)
	driver.CmdSetScissor(buffer, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: framebuffer.Extent,
	})
	driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, p.pipeline.Pipeline)
	driver.CmdBindIndexBuffer(buffer, p.geometry.IndexBuffer, 0, core1_0.IndexTypeUInt16)
	driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{p.geometry.VertexBuffer}, []int{0})
	driver.CmdDrawIndexed(buffer, p.geometry.IndexCount, 1, 0, 0, 0)
	driver.CmdEndRenderPass(buffer)

	_, err = driver.EndCommandBuffer(buffer)
	if err != nil {
		driver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "end command buffer")
	}

	return buffer, nil
}

// Abandon gives back the semaphores of an acquisition that will never be submitted.
func (p *VulkanPresenter) Abandon(acquired Acquisition) {
	p.discardSync(frameSync{available: acquired.Available, finished: acquired.Finished})
}

func (p *VulkanPresenter) Submit(previous CompletionToken, acquired Acquisition, commands core1_0.CommandBuffer) (CompletionToken, error) {
	sync := frameSync{available: acquired.Available, finished: acquired.Finished}

	fail := func(err error) (CompletionToken, error) {
		p.device.Driver.FreeCommandBuffers(commands)
		p.discardSync(sync)
		return nil, err
	}

	// At most one frame of unretired work before reuse
	if previous != nil {
		err := previous.Wait()
		if err != nil {
			return fail(errors.Wrap(err, "wait for previous frame"))
		}
	}

	fence, _, err := p.device.Driver.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return fail(errors.Wrap(err, "create fence"))
	}

	res, err := p.device.Driver.QueueSubmit(p.device.Queue, &fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{acquired.Available},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{commands},
			SignalSemaphores: []core1_0.Semaphore{acquired.Finished},
		},
	)
	if err != nil {
		p.device.Driver.DestroyFence(fence, nil)
		return fail(classify(res, err, "queue submit"))
	}

	return &fenceToken{
		presenter: p,
		fence:     fence,
		commands:  commands,
		sync:      sync,
	}, nil
}

func (p *VulkanPresenter) Present(chain *Chain, acquired Acquisition, submitted CompletionToken) (bool, error) {
	res, err := p.device.SwapchainExtension.QueuePresent(p.device.Queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{acquired.Finished},
		Swapchains:     []khr_swapchain.Swapchain{chain.Handle},
		ImageIndices:   []int{acquired.ImageIndex},
	})
	if err != nil || res == khr_swapchain.VKErrorOutOfDate {
		// The present may not have consumed the finished semaphore
		if token, ok := submitted.(*fenceToken); ok {
			token.dirty = true
		}
		return false, classify(res, err, "queue present")
	}

	return res == khr_swapchain.VKSuboptimal, nil
}

// Close releases the pool and spare semaphores. Every token must have retired.
func (p *VulkanPresenter) Close() {
	for _, sync := range p.spare {
		p.ops.destroySync(sync)
	}
	p.spare = nil

	if p.commandPool.Initialized() {
		p.device.Driver.DestroyCommandPool(p.commandPool, nil)
		p.commandPool = core1_0.CommandPool{}
	}
}

// fenceToken is the CompletionToken of one queue submission.
type fenceToken struct {
	presenter *VulkanPresenter
	fence     core1_0.Fence
	commands  core1_0.CommandBuffer
	sync      frameSync
	// dirty marks semaphores that cannot be recycled.
	dirty   bool
	retired bool
}

func (t *fenceToken) CleanupFinished() bool {
	if t.retired {
		return true
	}

	signalled, err := t.presenter.ops.fenceSignalled(t.fence, 0)
	if err != nil {
		t.presenter.logger.Warn("poll frame fence", slog.Any("err", err))
		return false
	}
	if !signalled {
		return false
	}

	t.release()
	return true
}

func (t *fenceToken) Wait() error {
	if t.retired {
		return nil
	}

	_, err := t.presenter.ops.fenceSignalled(t.fence, common.NoTimeout)
	if err != nil {
		return err
	}

	t.release()
	return nil
}

func (t *fenceToken) release() {
	p := t.presenter
	p.ops.destroyFence(t.fence)
	p.ops.freeCommands(t.commands)

	if t.dirty {
		p.ops.destroySync(t.sync)
	} else {
		p.spare = append(p.spare, t.sync)
	}

	t.retired = true
}
