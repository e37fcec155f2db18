package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// SwapchainState says whether the chain must be rebuilt before the next frame.
type SwapchainState int

const (
	Stable SwapchainState = iota
	NeedsRebuild
)

func (s SwapchainState) String() string {
	if s == NeedsRebuild {
		return "needs-rebuild"
	}
	return "stable"
}

// FrameState is the position of the loop inside one iteration.
type FrameState int

const (
	Idle FrameState = iota
	Acquiring
	Recording
	Submitted
)

func (s FrameState) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	}
	return "idle"
}

// Acquisition is an image handed out by the presentation engine together with the
// semaphores that order the frame's GPU work around it.
type Acquisition struct {
	ImageIndex int
	// Suboptimal images render fine but the chain should be rebuilt soon.
	Suboptimal bool
	// Available is signalled when the image may be written.
	Available core1_0.Semaphore
	// Finished is signalled by the submission and waited on by presentation.
	Finished core1_0.Semaphore
}

// Presenter is the per-frame half of the device: acquisition, recording, submission and
// presentation. Errors wrapping ErrOutOfDate or ErrDeviceLost are classified by the loop.
type Presenter interface {
	// Acquire blocks until an image of chain is available.
	Acquire(chain *Chain) (Acquisition, error)
	// Record builds the single-use draw commands for one framebuffer.
	Record(framebuffer Framebuffer, viewport core1_0.Viewport) (core1_0.CommandBuffer, error)
	// Abandon releases an acquisition that will not be submitted.
	Abandon(acquired Acquisition)
	// Submit takes ownership of previous and orders the new work after it and after the
	// acquisition. The returned token completes when the work retires.
	Submit(previous CompletionToken, acquired Acquisition, commands core1_0.CommandBuffer) (CompletionToken, error)
	// Present queues the image for display after submitted completes.
	Present(chain *Chain, acquired Acquisition, submitted CompletionToken) (suboptimal bool, err error)
}

type FrameLoopOptions struct {
	// FatalDeviceLoss makes a lost device end the loop instead of being logged.
	FatalDeviceLoss bool
	Stats           *FrameStats
	Logger          *slog.Logger
}

// FrameLoop drives one acquire, record, submit, present cycle per Step. It is owned by a
// single goroutine.
type FrameLoop struct {
	swapchains *SwapchainManager
	presenter  Presenter

	fatalDeviceLoss bool
	stats           *FrameStats
	logger          *slog.Logger

	state     FrameState
	previous  CompletionToken
	abandoned []CompletionToken
}

func NewFrameLoop(swapchains *SwapchainManager, presenter Presenter, opts FrameLoopOptions) *FrameLoop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &FrameLoop{
		swapchains:      swapchains,
		presenter:       presenter,
		fatalDeviceLoss: opts.FatalDeviceLoss,
		stats:           opts.Stats,
		logger:          opts.Logger,
		state:           Idle,
		previous:        Ready(),
	}
}

func (l *FrameLoop) State() FrameState {
	return l.state
}

// Previous returns the token of the most recent successful submission, or a ready token.
func (l *FrameLoop) Previous() CompletionToken {
	return l.previous
}

// CollectFinished releases retired work without blocking.
func (l *FrameLoop) CollectFinished() {
	l.previous.CleanupFinished()

	pending := l.abandoned[:0]
	for _, token := range l.abandoned {
		if !token.CleanupFinished() {
			pending = append(pending, token)
		}
	}
	for i := len(pending); i < len(l.abandoned); i++ {
		l.abandoned[i] = nil
	}
	l.abandoned = pending
}

// Step runs one iteration for a window of the given drawable extent and returns the
// swapchain state for the next one. Only fatal errors are returned; everything recoverable
// is absorbed here.
func (l *FrameLoop) Step(state SwapchainState, extent core1_0.Extent2D) (SwapchainState, error) {
	l.stats.begin()
	l.CollectFinished()

	if state == NeedsRebuild {
		err := l.swapchains.Recreate(extent)
		if errors.Is(err, ErrUnsupportedExtent) {
			l.logger.Debug("swapchain rebuild deferred", slog.Any("err", err))
			l.stats.skipped()
			return NeedsRebuild, nil
		}
		if err != nil {
			return state, err
		}

		l.stats.rebuilt()
		state = Stable
	}

	chain := l.swapchains.Chain()

	l.state = Acquiring
	acquired, err := l.presenter.Acquire(chain)
	if err != nil {
		return l.frameFailed("acquire", err, state)
	}
	if acquired.Suboptimal {
		state = NeedsRebuild
	}

	framebuffers := l.swapchains.Framebuffers()
	if acquired.ImageIndex < 0 || acquired.ImageIndex >= len(framebuffers) {
		l.presenter.Abandon(acquired)
		l.state = Idle
		return state, errors.Errorf("acquired image %d of %d", acquired.ImageIndex, len(framebuffers))
	}

	l.state = Recording
	commands, err := l.presenter.Record(framebuffers[acquired.ImageIndex], l.swapchains.Viewport())
	if err != nil {
		l.presenter.Abandon(acquired)
		l.state = Idle
		return state, errors.Wrap(err, "record frame")
	}

	previous := l.previous
	l.previous = nil
	submitted, err := l.presenter.Submit(previous, acquired, commands)
	if err != nil {
		l.previous = Ready()
		return l.frameFailed("submit", err, state)
	}

	l.state = Submitted
	suboptimal, err := l.presenter.Present(chain, acquired, submitted)
	if err != nil {
		l.abandoned = append(l.abandoned, submitted)
		l.previous = Ready()
		return l.frameFailed("present", err, state)
	}
	if suboptimal {
		state = NeedsRebuild
	}

	l.previous = submitted
	l.state = Idle
	l.stats.rendered()
	return state, nil
}

func (l *FrameLoop) frameFailed(stage string, err error, state SwapchainState) (SwapchainState, error) {
	l.state = Idle

	if errors.Is(err, ErrOutOfDate) {
		l.stats.skipped()
		return NeedsRebuild, nil
	}

	if errors.Is(err, ErrDeviceLost) && l.fatalDeviceLoss {
		return state, errors.Wrap(err, stage)
	}

	l.stats.failed()
	l.logger.Error("frame failed", slog.String("stage", stage), slog.Any("err", err))
	return state, nil
}

// Close waits for every outstanding submission to retire.
func (l *FrameLoop) Close() error {
	var result error
	if l.previous != nil {
		result = errors.CombineErrors(result, l.previous.Wait())
		l.previous = Ready()
	}

	for _, token := range l.abandoned {
		result = errors.CombineErrors(result, token.Wait())
	}
	l.abandoned = nil

	return result
}
