package render

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type fakeFrameOps struct {
	signalled bool
	pollErr   error

	timeouts       []time.Duration
	fences         int
	commands       int
	destroyedSyncs int
}

func (o *fakeFrameOps) fenceSignalled(fence core1_0.Fence, timeout time.Duration) (bool, error) {
	o.timeouts = append(o.timeouts, timeout)
	if o.pollErr != nil {
		return false, o.pollErr
	}
	if timeout == common.NoTimeout {
		o.signalled = true
	}
	return o.signalled, nil
}

func (o *fakeFrameOps) destroyFence(fence core1_0.Fence) {
	o.fences++
}

func (o *fakeFrameOps) freeCommands(commands core1_0.CommandBuffer) {
	o.commands++
}

func (o *fakeFrameOps) destroySync(sync frameSync) {
	o.destroyedSyncs++
}

func newTestToken() (*fenceToken, *VulkanPresenter, *fakeFrameOps) {
	ops := &fakeFrameOps{}
	presenter := &VulkanPresenter{
		logger: discardLogger(),
		ops:    ops,
	}
	return &fenceToken{presenter: presenter}, presenter, ops
}

func TestFenceTokenCleanupNeverBlocks(t *testing.T) {
	token, presenter, ops := newTestToken()

	if token.CleanupFinished() {
		t.Errorf("unsignalled fence reported finished")
	}
	if ops.fences != 0 || ops.commands != 0 || len(presenter.spare) != 0 {
		t.Errorf("resources released before the fence signalled")
	}

	ops.signalled = true
	if !token.CleanupFinished() {
		t.Errorf("signalled fence reported unfinished")
	}
	for _, timeout := range ops.timeouts {
		if timeout != 0 {
			t.Errorf("polled with timeout %s, want 0", timeout)
		}
	}

	if ops.fences != 1 || ops.commands != 1 {
		t.Errorf("got %d fences and %d command buffers released, want 1 of each", ops.fences, ops.commands)
	}
	if len(presenter.spare) != 1 || ops.destroyedSyncs != 0 {
		t.Errorf("clean semaphores were not recycled")
	}

	polls := len(ops.timeouts)
	if !token.CleanupFinished() || token.Wait() != nil {
		t.Errorf("retired token should stay finished")
	}
	if len(ops.timeouts) != polls || ops.fences != 1 || len(presenter.spare) != 1 {
		t.Errorf("retired token touched the device again")
	}
}

func TestFenceTokenDirtySemaphoresAreDestroyed(t *testing.T) {
	token, presenter, ops := newTestToken()
	token.dirty = true
	ops.signalled = true

	if !token.CleanupFinished() {
		t.Fatalf("signalled fence reported unfinished")
	}
	if len(presenter.spare) != 0 || ops.destroyedSyncs != 1 {
		t.Errorf("semaphores of a failed present were recycled")
	}
}

func TestFenceTokenWait(t *testing.T) {
	token, presenter, ops := newTestToken()

	if err := token.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ops.timeouts) != 1 || ops.timeouts[0] != common.NoTimeout {
		t.Errorf("got timeouts %v, want a single unbounded wait", ops.timeouts)
	}
	if ops.fences != 1 || len(presenter.spare) != 1 {
		t.Errorf("waited token was not released")
	}
}

func TestFenceTokenPollFailure(t *testing.T) {
	token, _, ops := newTestToken()
	ops.pollErr = errors.Wrap(ErrDeviceLost, "wait for frame fence")

	if token.CleanupFinished() {
		t.Errorf("failed poll reported finished")
	}
	if err := token.Wait(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("got %v, want ErrDeviceLost", err)
	}
	if ops.fences != 0 {
		t.Errorf("fence released after a failed wait")
	}
}

func TestTakeSyncReusesSpare(t *testing.T) {
	spare := frameSync{}
	presenter := &VulkanPresenter{spare: []frameSync{spare, spare}}

	if _, err := presenter.takeSync(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(presenter.spare) != 1 {
		t.Errorf("got %d spare pairs, want 1", len(presenter.spare))
	}
}
