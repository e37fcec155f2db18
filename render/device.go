package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// SurfaceFunc creates the presentation surface once the instance exists.
type SurfaceFunc func(instance core1_0.Instance, surfaceExtension khr_surface.ExtensionDriver) (khr_surface.Surface, error)

type DeviceOptions struct {
	ApplicationName string
	// InstanceExtensions are the extensions the window system needs to present.
	InstanceExtensions []string
	Validation         bool
	CreateSurface      SurfaceFunc
	Logger             *slog.Logger
}

// Device owns the instance, the presentation surface, the logical device and its single queue.
type Device struct {
	Global   core1_0.GlobalDriver
	Instance core1_0.CoreInstanceDriver
	Driver   core1_0.CoreDeviceDriver

	SurfaceExtension   khr_surface.ExtensionDriver
	Surface            khr_surface.Surface
	SwapchainExtension khr_swapchain.ExtensionDriver

	PhysicalDevice core1_0.PhysicalDevice
	Accelerator    Candidate
	Queue          core1_0.Queue

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	logger *slog.Logger
}

// NewDevice runs the one-time bootstrap. Any error is fatal to the caller.
func NewDevice(global core1_0.GlobalDriver, opts DeviceOptions) (*Device, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CreateSurface == nil {
		return nil, errors.New("device: no surface constructor")
	}

	d := &Device{
		Global: global,
		logger: opts.Logger,
	}

	err := d.init(opts)
	if err != nil {
		d.Destroy()
		return nil, err
	}

	return d, nil
}

func (d *Device) init(opts DeviceOptions) error {
	err := d.createInstance(opts)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	if opts.Validation {
		d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.Instance)
		d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, d.debugMessengerOptions())
		if err != nil {
			return errors.Wrap(err, "create debug messenger")
		}
	}

	d.SurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(d.Instance)
	d.Surface, err = opts.CreateSurface(d.Instance.Instance(), d.SurfaceExtension)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	err = d.pickAccelerator()
	if err != nil {
		return err
	}

	return d.createLogicalDevice()
}

func (d *Device) createInstance(opts DeviceOptions) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := d.Global.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range opts.InstanceExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Errorf("missing window system extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := d.Global.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Errorf("validation layer %s not available- install LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.Next = d.debugMessengerOptions()
	}

	d.Instance, _, err = d.Global.CreateInstance(nil, instanceOptions)
	return err
}

func (d *Device) pickAccelerator() error {
	physicalDevices, _, err := d.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	reports := make([]DeviceReport, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		reports = append(reports, d.report(physicalDevice))
	}

	candidates := Candidates(reports, d.logger)
	for _, candidate := range candidates {
		d.logger.Debug("found accelerator",
			slog.String("name", candidate.Name),
			slog.String("kind", candidate.Kind.String()),
			slog.Bool("suitable", candidate.Suitable()))
	}

	chosen, err := SelectAccelerator(candidates)
	if err != nil {
		return err
	}

	d.Accelerator = chosen
	d.PhysicalDevice = physicalDevices[chosen.Index]
	d.logger.Info("using device",
		slog.String("name", chosen.Name),
		slog.String("kind", chosen.Kind.String()),
		slog.Int("queue_family", chosen.QueueFamily))

	return nil
}

// report runs every per-device query. Failures are recorded, not returned.
func (d *Device) report(physicalDevice core1_0.PhysicalDevice) DeviceReport {
	var report DeviceReport

	properties, err := d.Instance.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		report.PropertiesErr = err
	} else {
		report.Name = properties.DeviceName
		report.Type = properties.DeviceType
	}

	report.HasExtensions, report.ExtensionsErr = d.supportsExtensions(physicalDevice)

	queueFamilies := d.Instance.GetPhysicalDeviceQueueFamilyProperties(physicalDevice)
	for queueFamilyIdx, queueFamily := range queueFamilies {
		family := FamilyReport{Graphics: (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0}
		if family.Graphics {
			family.Present, _, family.PresentErr = d.SurfaceExtension.GetPhysicalDeviceSurfaceSupport(d.Surface, physicalDevice, queueFamilyIdx)
		}
		report.Families = append(report.Families, family)
	}

	return report
}

func (d *Device) supportsExtensions(physicalDevice core1_0.PhysicalDevice) (bool, error) {
	extensions, _, err := d.Instance.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return false, err
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false, nil
		}
	}

	return true, nil
}

func (d *Device) createLogicalDevice() error {
	extensionNames := append([]string(nil), deviceExtensions...)

	// Portability implementations (MoltenVK) require the subset extension when they advertise it
	extensions, _, err := d.Instance.EnumerateDeviceExtensionProperties(d.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.Driver, _, err = d.Instance.CreateDevice(d.PhysicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: d.Accelerator.QueueFamily,
				QueuePriorities:  []float32{0.5},
			},
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	d.Queue = d.Driver.GetQueue(d.Accelerator.QueueFamily, 0)
	d.SwapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.Driver)
	return nil
}

// SurfaceCapabilities queries the current surface limits of the chosen device.
func (d *Device) SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	capabilities, _, err := d.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(d.Surface, d.PhysicalDevice)
	return capabilities, errors.Wrap(err, "surface capabilities")
}

// SurfaceFormat returns the first format the surface supports. The chain and the render pass
// both use it.
func (d *Device) SurfaceFormat() (khr_surface.SurfaceFormat, error) {
	formats, _, err := d.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(d.Surface, d.PhysicalDevice)
	if err != nil {
		return khr_surface.SurfaceFormat{}, errors.Wrap(err, "surface formats")
	}
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, errors.New("surface reports no formats")
	}

	return formats[0], nil
}

// PresentModes lists the present modes the surface supports.
func (d *Device) PresentModes() ([]khr_surface.PresentMode, error) {
	modes, _, err := d.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(d.Surface, d.PhysicalDevice)
	return modes, errors.Wrap(err, "surface present modes")
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	if d.Driver == nil {
		return nil
	}

	_, err := d.Driver.DeviceWaitIdle()
	return errors.Wrap(err, "wait idle")
}

func (d *Device) Destroy() {
	if d.Driver != nil {
		d.Driver.DestroyDevice(nil)
		d.Driver = nil
	}

	if d.debugMessenger.Initialized() {
		d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil)
		d.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if d.Surface.Initialized() {
		d.SurfaceExtension.DestroySurface(d.Surface, nil)
		d.Surface = khr_surface.Surface{}
	}

	if d.Instance != nil {
		d.Instance.DestroyInstance(nil)
		d.Instance = nil
	}
}
