package render

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// AcceleratorKind is the closed set of physical device types, declared in order of preference.
type AcceleratorKind int

const (
	KindDiscrete AcceleratorKind = iota
	KindIntegrated
	KindVirtual
	KindCPU
	KindOther
)

func (k AcceleratorKind) String() string {
	switch k {
	case KindDiscrete:
		return "discrete"
	case KindIntegrated:
		return "integrated"
	case KindVirtual:
		return "virtual"
	case KindCPU:
		return "cpu"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("AcceleratorKind(%d)", int(k))
}

// Rank orders kinds for selection. Lower is better.
func (k AcceleratorKind) Rank() int {
	if k < KindDiscrete || k > KindOther {
		return int(KindOther)
	}
	return int(k)
}

// KindOf converts a Vulkan device type into an AcceleratorKind.
func KindOf(deviceType core1_0.PhysicalDeviceType) AcceleratorKind {
	switch deviceType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return KindDiscrete
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return KindIntegrated
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		return KindVirtual
	case core1_0.PhysicalDeviceTypeCPU:
		return KindCPU
	}
	return KindOther
}

// Candidate describes one enumerated physical device.
type Candidate struct {
	// Index is the position in enumeration order.
	Index int
	Name  string
	Kind  AcceleratorKind
	// QueueFamily is a family supporting both graphics and presentation, or -1.
	QueueFamily int
	// HasExtensions is true when every required device extension is available.
	HasExtensions bool
}

func (c Candidate) Suitable() bool {
	return c.HasExtensions && c.QueueFamily >= 0
}

// DeviceReport holds the query results for one physical device. A failed query leaves its
// error set and makes the device unsuitable.
type DeviceReport struct {
	Name          string
	Type          core1_0.PhysicalDeviceType
	PropertiesErr error

	HasExtensions bool
	ExtensionsErr error

	// Families is indexed by queue family.
	Families []FamilyReport
}

type FamilyReport struct {
	Graphics bool
	// Present is only queried for graphics families.
	Present    bool
	PresentErr error
}

// Candidates turns reports into candidates in enumeration order. Query errors are logged
// and count as "not supported".
func Candidates(reports []DeviceReport, logger *slog.Logger) []Candidate {
	if logger == nil {
		logger = slog.Default()
	}

	candidates := make([]Candidate, 0, len(reports))
	for index, report := range reports {
		candidate := Candidate{
			Index:         index,
			Name:          report.Name,
			Kind:          KindOf(report.Type),
			QueueFamily:   -1,
			HasExtensions: report.HasExtensions && report.ExtensionsErr == nil,
		}

		if report.PropertiesErr != nil {
			logger.Warn("skipping accelerator", slog.Int("index", index), slog.Any("err", report.PropertiesErr))
			candidate.Name = fmt.Sprintf("device %d", index)
			candidate.Kind = KindOther
			candidate.HasExtensions = false
		}

		if report.ExtensionsErr != nil {
			logger.Warn("device extensions unavailable", slog.String("name", candidate.Name), slog.Any("err", report.ExtensionsErr))
		}

		for family, queue := range report.Families {
			if !queue.Graphics {
				continue
			}
			if queue.PresentErr != nil {
				logger.Warn("surface support unavailable",
					slog.String("name", candidate.Name),
					slog.Int("queue_family", family),
					slog.Any("err", queue.PresentErr))
				continue
			}
			if queue.Present {
				candidate.QueueFamily = family
				break
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}

// SelectAccelerator picks the best suitable candidate by kind rank. Ties keep enumeration order.
func SelectAccelerator(candidates []Candidate) (Candidate, error) {
	best := -1
	for i, candidate := range candidates {
		if !candidate.Suitable() {
			continue
		}

		if best < 0 || candidate.Kind.Rank() < candidates[best].Kind.Rank() {
			best = i
		}
	}

	if best < 0 {
		return Candidate{}, errors.Wrapf(ErrNoSuitableAccelerator, "checked %d devices", len(candidates))
	}

	return candidates[best], nil
}
