// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API via the
// github.com/vulkan-go/vulkan bindings.
package vk

import (
	"errors"
	"runtime"
	"sync"
	"unsafe"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

const driverName = "vulkan"
const preferredAPIVersion = vulkan.ApiVersion13

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	proc

	inst  vulkan.Instance
	ivers uint32
	pdev  vulkan.PhysicalDevice
	dname string
	dvers uint32
	dev   vulkan.Device
	ques  []vulkan.Queue
	qfam  uint32

	// Mutexes for ques synchronization.
	// Queue submission requires that the queue handle
	// be externally synchronized, thus this is needed
	// to allow Commit calls to run concurrently.
	qmus []sync.Mutex

	// Commit data created in advance.
	// The capacity of the channel limits the number
	// of concurrent Commit calls.
	cinfo chan *commitInfo
	csync chan *commitSync

	// Enabled extensions, indexed by ext* constants.
	exts [extN]bool

	// Used device memory, indexed by heap indices.
	mused []int64
	mprop vulkan.PhysicalDeviceMemoryProperties

	// Limits of pdev.
	lim driver.Limits
}

func init() {
	driver.Register(&Driver{})
}

// initInstance initializes the Vulkan instance.
func (d *Driver) initInstance() error {
	if err := vulkan.Init(); err != nil {
		return driver.ErrNoDevice
	}
	d.ivers = vulkan.ApiVersion10
	if vulkan.EnumerateInstanceVersion != nil {
		var ivers uint32
		if checkResult(vulkan.EnumerateInstanceVersion(&ivers)) == nil {
			d.ivers = ivers
		}
	}
	if isVariant(d.ivers) {
		// Do not support variants.
		return driver.ErrNoDevice
	}
	apiVers := d.ivers
	if apiVers != vulkan.ApiVersion10 {
		apiVers = preferredAPIVersion
	}
	appInfo := &vulkan.ApplicationInfo{
		SType:      vulkan.StructureTypeApplicationInfo,
		ApiVersion: apiVers,
	}
	info := vulkan.InstanceCreateInfo{
		SType:            vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	free, err := d.setInstanceExts(&info)
	defer free()
	if err != nil {
		return err
	}
	var inst vulkan.Instance
	if err := checkResult(vulkan.CreateInstance(&info, nil, &inst)); err != nil {
		return err
	}
	d.inst = inst
	vulkan.InitInstance(inst)
	return nil
}

// initDevice initializes the Vulkan device.
func (d *Driver) initDevice() error {
	var n uint32
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	// The wording in the spec seems to indicate that EnumeratePhysicalDevices
	// need not expose any devices at all. We assume that n could be zero here,
	// in which case no suitable device can be found.
	if n == 0 {
		return driver.ErrNoDevice
	}
	devs := make([]vulkan.PhysicalDevice, n)
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, devs)); err != nil {
		return err
	}

	devProps := make([]vulkan.PhysicalDeviceProperties, n)
	queProps := make([][]vulkan.QueueFamilyProperties, n)
	for i, dev := range devs {
		devProps[i].Deref()
		vulkan.GetPhysicalDeviceProperties(dev, &devProps[i])
		devProps[i].Deref()
		vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, nil)
		qp := make([]vulkan.QueueFamilyProperties, n)
		vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, qp)
		for j := range qp {
			qp[j].Deref()
		}
		queProps[i] = qp
	}

	// Select a suitable physical device to use. The bare minimum is a
	// device with a queue supporting graphics and compute operations.
	// Ideally, the device will be capable of creating swapchains and
	// be hardware-accelerated.
	weight := 0
	for i, dev := range devs {
		devProps[i].Limits.Deref()
		if isVariant(devProps[i].ApiVersion) {
			// Do not support variants.
			continue
		}
		fam := len(queProps[i])
		flg := vulkan.QueueFlags(vulkan.QueueGraphicsBit | vulkan.QueueComputeBit)
		for j, qp := range queProps[i] {
			if vulkan.QueueFlags(qp.QueueFlags)&flg == flg {
				fam = j
				break
			}
		}
		if fam == len(queProps[i]) {
			// Device does not support graphics/compute operations.
			continue
		}
		wgt := 1
		if devProps[i].DeviceType == vulkan.PhysicalDeviceTypeIntegratedGpu || devProps[i].DeviceType == vulkan.PhysicalDeviceTypeDiscreteGpu {
			wgt++
		}
		if exts, err := deviceExts(dev); err == nil {
			for _, e := range exts {
				if e == extSwapchain.name() {
					wgt += 2
					break
				}
			}
		}
		if wgt > weight {
			d.pdev = dev
			d.dname = vulkanString(devProps[i].DeviceName[:])
			d.dvers = devProps[i].ApiVersion
			d.ques = make([]vulkan.Queue, len(queProps[i]))
			d.qfam = uint32(fam)
			d.setLimits(&devProps[i].Limits)
			weight = wgt
		}
	}
	if weight == 0 {
		// None of the exposed devices will suffice.
		return driver.ErrNoDevice
	}
	d.mprop.Deref()
	vulkan.GetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.mprop.Deref()
	d.mused = make([]int64, d.mprop.MemoryHeapCount)

	// Create one queue of every family exposed by the device. For graphics
	// and compute commands, the queue identified by d.qfam will be used.
	// The remaining queues only exist to increase the likelihood of finding
	// one that supports presentation.
	quePrio := []float32{1.0}
	qis := make([]vulkan.DeviceQueueCreateInfo, len(d.ques))
	for i := range qis {
		qis[i] = vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(i),
			QueueCount:       1,
			PQueuePriorities: quePrio,
		}
	}
	info := vulkan.DeviceCreateInfo{
		SType:                vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(d.ques)),
		PQueueCreateInfos:    qis,
	}
	free, err := d.setDeviceExts(&info)
	defer free()
	if err != nil {
		return err
	}
	defer d.setFeatures(&info)()
	var dev vulkan.Device
	if err := checkResult(vulkan.CreateDevice(d.pdev, &info, nil, &dev)); err != nil {
		return err
	}
	d.dev = dev
	for i := range d.ques {
		var q vulkan.Queue
		vulkan.GetDeviceQueue(d.dev, uint32(i), 0, &q)
		d.ques[i] = q
	}
	return nil
}

// setLimits sets d.lim.
func (d *Driver) setLimits(lim *vulkan.PhysicalDeviceLimits) {
	lim.Deref()
	d.lim = driver.Limits{
		MaxImage1D:   int(lim.MaxImageDimension1D),
		MaxImage2D:   int(lim.MaxImageDimension2D),
		MaxImageCube: int(lim.MaxImageDimensionCube),
		MaxImage3D:   int(lim.MaxImageDimension3D),
		MaxLayers:    int(lim.MaxImageArrayLayers),

		MaxDescHeaps:         int(lim.MaxBoundDescriptorSets),
		MaxDescBuffer:        int(lim.MaxPerStageDescriptorStorageBuffers),
		MaxDescImage:         int(lim.MaxPerStageDescriptorStorageImages),
		MaxDescConstant:      int(lim.MaxPerStageDescriptorUniformBuffers),
		MaxDescTexture:       int(lim.MaxPerStageDescriptorSampledImages),
		MaxDescSampler:       int(lim.MaxPerStageDescriptorSamplers),
		MaxDescBufferRange:   int64(lim.MaxStorageBufferRange),
		MaxDescConstantRange: int64(lim.MaxUniformBufferRange),

		MaxColorTargets: int(lim.MaxColorAttachments),
		MaxRenderSize:   [2]int{int(lim.MaxFramebufferWidth), int(lim.MaxFramebufferHeight)},
		MaxRenderLayers: int(lim.MaxFramebufferLayers),
		MaxPointSize:    lim.PointSizeRange[1],
		MaxViewports:    int(lim.MaxViewports),

		MaxVertexIn:   int(lim.MaxVertexInputBindings),
		MaxFragmentIn: int(lim.MaxFragmentInputComponents / 4),

		MaxDispatch: [3]int{
			int(lim.MaxComputeWorkGroupCount[0]),
			int(lim.MaxComputeWorkGroupCount[1]),
			int(lim.MaxComputeWorkGroupCount[2]),
		},
	}
}

// setFeatures chooses which features to enable.
// BUG: Either provide a way in the driver package to check what is
// enabled or just let device creation fail.
func (d *Driver) setFeatures(info *vulkan.DeviceCreateInfo) (free func()) {
	var fq vulkan.PhysicalDeviceFeatures
	vulkan.GetPhysicalDeviceFeatures(d.pdev, &fq)
	fq.Deref()
	feat := vulkan.PhysicalDeviceFeatures{
		FullDrawIndexUint32:                     fq.FullDrawIndexUint32,
		ImageCubeArray:                          fq.ImageCubeArray,
		IndependentBlend:                        fq.IndependentBlend,
		DepthBiasClamp:                          fq.DepthBiasClamp,
		FillModeNonSolid:                        fq.FillModeNonSolid,
		LargePoints:                             fq.LargePoints,
		MultiViewport:                           fq.MultiViewport,
		SamplerAnisotropy:                       fq.SamplerAnisotropy,
		FragmentStoresAndAtomics:                fq.FragmentStoresAndAtomics,
		ShaderUniformBufferArrayDynamicIndexing: fq.ShaderUniformBufferArrayDynamicIndexing,
		ShaderSampledImageArrayDynamicIndexing:  fq.ShaderSampledImageArrayDynamicIndexing,
		ShaderStorageBufferArrayDynamicIndexing: fq.ShaderStorageBufferArrayDynamicIndexing,
		ShaderStorageImageArrayDynamicIndexing:  fq.ShaderStorageImageArrayDynamicIndexing,
		ShaderClipDistance:                      fq.ShaderClipDistance,
		ShaderCullDistance:                      fq.ShaderCullDistance,
	}
	info.PEnabledFeatures = []vulkan.PhysicalDeviceFeatures{feat}

	// Currently, the extDynamicRendering/extSynchronization2
	// extensions are required (see ext.go).
	sync2 := vulkan.PhysicalDeviceSynchronization2FeaturesKHR{
		SType:            vulkan.StructureTypePhysicalDeviceSynchronization2FeaturesKhr,
		Synchronization2: vulkan.True,
	}
	dynr := vulkan.PhysicalDeviceDynamicRenderingFeaturesKHR{
		SType:            vulkan.StructureTypePhysicalDeviceDynamicRenderingFeaturesKhr,
		PNext:            unsafe.Pointer(&sync2),
		DynamicRendering: vulkan.True,
	}
	info.PNext = unsafe.Pointer(&dynr)

	return func() {}
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.dev != vulkan.NullDevice {
		return d, nil
	}
	if err = d.open(); err != nil {
		goto fail
	}
	if err = d.initInstance(); err != nil {
		goto fail
	}
	if err = d.initDevice(); err != nil {
		goto fail
	}
	d.qmus = make([]sync.Mutex, len(d.ques))
	d.cinfo = make(chan *commitInfo, runtime.NumCPU())
	for i := 0; i < cap(d.cinfo); i++ {
		var ci *commitInfo
		if ci, err = d.newCommitInfo(); err != nil {
			goto fail
		}
		d.cinfo <- ci
	}
	// This channel's capacity is arbitrary.
	d.csync = make(chan *commitSync, cap(d.cinfo)*2)
	for i := 0; i < cap(d.csync); i++ {
		var cs *commitSync
		if cs, err = d.newCommitSync(); err != nil {
			goto fail
		}
		d.csync <- cs
	}
	return d, nil
fail:
	d.Close()
	return nil, err
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	// We check the instance and device handles here
	// because the procs might not have been loaded.
	if d.inst != vulkan.NullInstance {
		if d.dev != vulkan.NullDevice {
			vulkan.DeviceWaitIdle(d.dev)
			for len(d.cinfo) > 0 {
				d.destroyCommitInfo(<-d.cinfo)
			}
			for len(d.csync) > 0 {
				d.destroyCommitSync(<-d.csync)
			}
			// TODO: Ensure that all objects created
			// from d.dev were destroyed.
			vulkan.DestroyDevice(d.dev, nil)
		}
		vulkan.DestroyInstance(d.inst, nil)
	}
	d.close()
	*d = Driver{}
}

// memory represents a device memory allocation.
type memory struct {
	d     *Driver
	size  int64
	vis   bool
	bound bool
	p     []byte
	mem   vulkan.DeviceMemory
	typ   int
	heap  int
}

// selectMemory selects a suitable memory type from the device.
// It returns the index of the selected memory, or -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint, prop vulkan.MemoryPropertyFlagBits) int {
	for i := 0; i < int(d.mprop.MemoryTypeCount); i++ {
		if 1<<i&typeBits != 0 {
			flags := vulkan.MemoryPropertyFlagBits(d.mprop.MemoryTypes[i].PropertyFlags)
			if flags&prop == prop {
				return i
			}
		}
	}
	return -1
}

// newMemory creates a new memory allocation.
func (d *Driver) newMemory(req vulkan.MemoryRequirements, visible bool) (*memory, error) {
	var prop vulkan.MemoryPropertyFlagBits = vulkan.MemoryPropertyDeviceLocalBit
	if visible {
		prop |= vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit
	}

	typ := d.selectMemory(uint(req.MemoryTypeBits), prop)
	if typ == -1 {
		// Device-local memory is desired but not required.
		prop &^= vulkan.MemoryPropertyDeviceLocalBit
	}
	typ = d.selectMemory(uint(req.MemoryTypeBits), prop)
	if typ == -1 {
		return nil, errors.New("vk: no suitable memory type found")
	}

	info := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	var mem vulkan.DeviceMemory
	if err := checkResult(vulkan.AllocateMemory(d.dev, &info, nil, &mem)); err != nil {
		return nil, err
	}
	heap := int(d.mprop.MemoryTypes[typ].HeapIndex)
	d.mused[heap] += int64(req.Size)

	return &memory{
		d:    d,
		size: int64(req.Size),
		vis:  visible,
		mem:  mem,
		typ:  typ,
		heap: heap,
	}, nil
}

// mmap maps the memory for host access.
// The memory must be host visible (m.vis) and must have been bound to a
// resource (m.bound).
func (m *memory) mmap() error {
	if !m.vis {
		panic("cannot map memory that is not host visible")
	}
	if !m.bound {
		panic("cannot map memory that is not bound to a resource")
	}
	if len(m.p) == 0 {
		var p unsafe.Pointer
		if err := checkResult(vulkan.MapMemory(m.d.dev, m.mem, 0, vulkan.WholeSize, 0, &p)); err != nil {
			return err
		}
		m.p = (*[1 << 30]byte)(p)[:m.size:m.size]
	}
	return nil
}

// unmap unmaps the memory.
func (m *memory) unmap() {
	if len(m.p) != 0 {
		vulkan.UnmapMemory(m.d.dev, m.mem)
		m.p = nil
	}
}

// free deallocates and invalidates the memory.
func (m *memory) free() {
	if m == nil {
		return
	}
	if m.d != nil {
		vulkan.FreeMemory(m.d.dev, m.mem, nil)
		m.d.mused[m.heap] -= m.size
	}
	*m = memory{}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.lim }

// checkResult returns an error derived from a vulkan.Result value.
// If such value does not indicate an error, it returns nil instead.
func checkResult(res vulkan.Result) error {
	if res >= 0 {
		// Not an error: Vulkan error results are all negative.
		return nil
	}
	switch res {
	case vulkan.ErrorOutOfHostMemory:
		return errNoHostMemory
	case vulkan.ErrorOutOfDeviceMemory:
		return errNoDeviceMemory
	case vulkan.ErrorInitializationFailed:
		return errInitFailed
	case vulkan.ErrorDeviceLost:
		return errDeviceLost
	case vulkan.ErrorMemoryMapFailed:
		return errMMapFailed
	case vulkan.ErrorLayerNotPresent:
		return errNoLayer
	case vulkan.ErrorExtensionNotPresent:
		return errNoExtension
	case vulkan.ErrorFeatureNotPresent:
		return errNoFeature
	case vulkan.ErrorIncompatibleDriver:
		return errDriverCompat
	case vulkan.ErrorTooManyObjects:
		return errTooManyObjects
	case vulkan.ErrorFormatNotSupported:
		return errUnsupportedFormat
	case vulkan.ErrorFragmentedPool:
		return errFragmentedPool
	case vulkan.ErrorOutOfPoolMemory:
		return errNoPoolMemory
	case vulkan.ErrorInvalidExternalHandle:
		return errExternalHandle
	case vulkan.ErrorFragmentation:
		return errFragmentation
	case vulkan.ErrorSurfaceLost:
		return errSurfaceLost
	case vulkan.ErrorNativeWindowInUse:
		return errWindowInUse
	case vulkan.ErrorOutOfDate:
		return errOutOfDate
	case vulkan.ErrorIncompatibleDisplay:
		return errDisplayCompat
	}
	return errUnknown
}

// Common Vulkan errors.
var (
	errNoHostMemory      = driver.ErrNoHostMemory
	errNoDeviceMemory    = driver.ErrNoDeviceMemory
	errInitFailed        = errors.New("vk: initialization failed")
	errDeviceLost        = driver.ErrFatal
	errMMapFailed        = errors.New("vk: memory map failed")
	errNoLayer           = errors.New("vk: layer not present")
	errNoExtension       = errors.New("vk: extension not present")
	errNoFeature         = errors.New("vk: feature not present")
	errDriverCompat      = errors.New("vk: incompatible driver")
	errTooManyObjects    = errors.New("vk: too many objects")
	errUnsupportedFormat = errors.New("vk: format not supported")
	errFragmentedPool    = errors.New("vk: fragmented pool")
	errUnknown           = errors.New("vk: unknown error")
	errNoPoolMemory      = errors.New("vk: out of pool memory")
	errExternalHandle    = errors.New("vk: invalid external handle")
	errFragmentation     = errors.New("vk: fragmentation")
	errSurfaceLost       = errors.New("vk: surface lost")
	errWindowInUse       = errors.New("vk: native window in use")
	errOutOfDate         = driver.ErrSwapchain
	errDisplayCompat     = errors.New("vk: incompatible display")
)

// DeviceName returns the name of the vulkan.Device that the driver
// is using.
func (d *Driver) DeviceName() string { return d.dname }

// InstanceVersion returns the version of the vulkan.Instance that
// the driver is using.
func (d *Driver) InstanceVersion() (major, minor, patch int) {
	major = versionMajor(d.ivers)
	minor = versionMinor(d.ivers)
	patch = versionPatch(d.ivers)
	return
}

// DeviceVersion returns the version of the vulkan.Device that
// the driver is using.
func (d *Driver) DeviceVersion() (major, minor, patch int) {
	major = versionMajor(d.dvers)
	minor = versionMinor(d.dvers)
	patch = versionPatch(d.dvers)
	return
}

// versionMajor extracts the major version number from v.
// v must have been generated by vulkan.MakeVersion.
func versionMajor(v uint32) int { return int(v >> 22 & 0x7f) }

// versionMinor extracts the minor version number from v.
// v must have been generated by vulkan.MakeVersion.
func versionMinor(v uint32) int { return int(v >> 12 & 0x3ff) }

// versionPatch extracts the patch version number from v.
// v must have been generated by vulkan.MakeVersion.
func versionPatch(v uint32) int { return int(v & 0xfff) }

// isVariant returns whether version v identifies a variant
// implementation of the Vulkan API.
// v must have been generated by vulkan.MakeVersion.
func isVariant(v uint32) bool { return v>>29 != 0 }

// vulkanString converts a NUL-terminated int8 array (as used by
// Vulkan's char fixed-size struct fields) into a Go string.
func vulkanString(b []int8) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(b[i])
	}
	return string(buf)
}
