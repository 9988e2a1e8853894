//go:build gpu

package compute

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <stdlib.h>
#include <CL/cl.h>

static cl_command_queue dosetrace_create_queue(cl_context ctx, cl_device_id device, cl_int profiling, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	cl_queue_properties props[3] = {0, 0, 0};
	if (profiling) {
		props[0] = CL_QUEUE_PROPERTIES;
		props[1] = CL_QUEUE_PROFILING_ENABLE;
	}
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	cl_command_queue_properties props = profiling ? CL_QUEUE_PROFILING_ENABLE : 0;
	return clCreateCommandQueue(ctx, device, props, status);
#endif
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

// openclBackend drives real OpenCL platforms through cgo. Built only with
// the gpu tag; other builds get the stub in opencl_stub.go.
type openclBackend struct {
	deviceIDs []C.cl_device_id
}

// NewOpenCLBackend returns the OpenCL backend.
func NewOpenCLBackend() (Backend, error) {
	return &openclBackend{}, nil
}

func (b *openclBackend) Name() string { return "opencl" }

// Devices enumerates every device on every platform. The enumeration
// order is the driver's platform/device order, which is stable within a
// process run.
func (b *openclBackend) Devices() ([]Device, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if err := CheckStatus(Status(status), "clGetPlatformIDs(count)"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	platformIDs := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &platformIDs[0], nil)
	if err := CheckStatus(Status(status), "clGetPlatformIDs(list)"); err != nil {
		return nil, err
	}

	b.deviceIDs = b.deviceIDs[:0]
	var devices []Device
	for _, pid := range platformIDs {
		platformName, err := getPlatformString(pid, C.CL_PLATFORM_NAME)
		if err != nil {
			return nil, err
		}

		ids, err := platformDeviceIDs(pid)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			dev, err := buildDevice(id, platformName)
			if err != nil {
				return nil, err
			}
			dev.ID = len(devices)
			b.deviceIDs = append(b.deviceIDs, id)
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

func (b *openclBackend) CreateContext(dev Device) (BackendContext, error) {
	if dev.ID < 0 || dev.ID >= len(b.deviceIDs) {
		return nil, &Error{Component: "backend", Op: "create context", Detail: fmt.Sprintf("device id %d of %d", dev.ID, len(b.deviceIDs)), Err: ErrInvalidUsage}
	}
	id := b.deviceIDs[dev.ID]

	var status C.cl_int
	ctx := C.clCreateContext(nil, 1, &id, nil, nil, &status)
	if err := CheckStatus(Status(status), "clCreateContext"); err != nil {
		return nil, err
	}
	return &openclContext{context: ctx, deviceID: id}, nil
}

// platformDeviceIDs lists every device of one platform. A platform with
// no devices yields an empty list, not an error.
func platformDeviceIDs(platform C.cl_platform_id) ([]C.cl_device_id, error) {
	var count C.cl_uint
	status := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND {
		return nil, nil
	}
	if err := CheckStatus(Status(status), "clGetDeviceIDs(count)"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, count, &ids[0], nil)
	if err := CheckStatus(Status(status), "clGetDeviceIDs(list)"); err != nil {
		return nil, err
	}
	return ids, nil
}

func buildDevice(id C.cl_device_id, platformName string) (Device, error) {
	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return Device{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return Device{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return Device{}, err
	}
	driver, err := getDeviceString(id, C.CL_DRIVER_VERSION)
	if err != nil {
		return Device{}, err
	}

	var rawType C.cl_device_type
	status := C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(type)"); err != nil {
		return Device{}, err
	}

	globalMem, err := getDeviceULong(id, C.CL_DEVICE_GLOBAL_MEM_SIZE, "clGetDeviceInfo(globalMem)")
	if err != nil {
		return Device{}, err
	}
	localMem, err := getDeviceULong(id, C.CL_DEVICE_LOCAL_MEM_SIZE, "clGetDeviceInfo(localMem)")
	if err != nil {
		return Device{}, err
	}
	maxAlloc, err := getDeviceULong(id, C.CL_DEVICE_MAX_MEM_ALLOC_SIZE, "clGetDeviceInfo(maxAlloc)")
	if err != nil {
		return Device{}, err
	}

	var computeUnits C.cl_uint
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(computeUnits)), unsafe.Pointer(&computeUnits), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(computeUnits)"); err != nil {
		return Device{}, err
	}

	var maxWorkGroup C.size_t
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(maxWorkGroup)), unsafe.Pointer(&maxWorkGroup), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(maxWorkGroup)"); err != nil {
		return Device{}, err
	}

	var available C.cl_bool
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_AVAILABLE, C.size_t(unsafe.Sizeof(available)), unsafe.Pointer(&available), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(available)"); err != nil {
		return Device{}, err
	}

	var queueProps C.cl_command_queue_properties
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_QUEUE_PROPERTIES, C.size_t(unsafe.Sizeof(queueProps)), unsafe.Pointer(&queueProps), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(queueProps)"); err != nil {
		return Device{}, err
	}

	return Device{
		Kind:             mapDeviceKind(rawType),
		Name:             name,
		Vendor:           vendor,
		Platform:         platformName,
		DriverVersion:    driver,
		RuntimeVersion:   version,
		GlobalMemory:     globalMem,
		LocalMemory:      localMem,
		MaxAllocation:    maxAlloc,
		ComputeUnits:     uint32(computeUnits),
		MaxWorkGroupSize: uint64(maxWorkGroup),
		Available:        available == C.CL_TRUE,
		Profiling:        queueProps&C.CL_QUEUE_PROFILING_ENABLE != 0,
	}, nil
}

type openclContext struct {
	context  C.cl_context
	deviceID C.cl_device_id
}

func (c *openclContext) CreateQueue(profiling bool) (BackendQueue, error) {
	flag := C.cl_int(0)
	if profiling {
		flag = 1
	}
	var status C.cl_int
	queue := C.dosetrace_create_queue(c.context, c.deviceID, flag, &status)
	if err := CheckStatus(Status(status), "clCreateCommandQueue"); err != nil {
		return nil, err
	}
	return &openclQueue{queue: queue}, nil
}

func (c *openclContext) CreateEvent() (BackendEvent, error) {
	return &openclEvent{}, nil
}

func (c *openclContext) AllocateBuffer(size uint64, flags MemFlag) (BackendBuffer, error) {
	var status C.cl_int
	mem := C.clCreateBuffer(c.context, memFlagBits(flags), C.size_t(size), nil, &status)
	if err := CheckStatus(Status(status), "clCreateBuffer"); err != nil {
		return nil, err
	}
	return &openclBuffer{mem: mem}, nil
}

func memFlagBits(flags MemFlag) C.cl_mem_flags {
	switch flags {
	case MemReadOnly:
		return C.CL_MEM_READ_ONLY
	case MemWriteOnly:
		return C.CL_MEM_WRITE_ONLY
	default:
		return C.CL_MEM_READ_WRITE
	}
}

func (c *openclContext) CompileProgram(source, options string) (BackendProgram, error) {
	csource := C.CString(source)
	defer C.free(unsafe.Pointer(csource))

	var status C.cl_int
	program := C.clCreateProgramWithSource(c.context, 1, &csource, nil, &status)
	if err := CheckStatus(Status(status), "clCreateProgramWithSource"); err != nil {
		return nil, err
	}

	coptions := C.CString(options)
	defer C.free(unsafe.Pointer(coptions))

	status = C.clBuildProgram(program, 1, &c.deviceID, coptions, nil, nil)
	if status == C.CL_BUILD_PROGRAM_FAILURE {
		log := programBuildLog(program, c.deviceID)
		C.clReleaseProgram(program)
		return nil, &BuildError{Options: options, Log: log}
	}
	if err := CheckStatus(Status(status), "clBuildProgram"); err != nil {
		C.clReleaseProgram(program)
		return nil, err
	}

	return &openclProgram{program: program}, nil
}

func (c *openclContext) Release() error {
	if c.context != nil {
		status := C.clReleaseContext(c.context)
		c.context = nil
		return CheckStatus(Status(status), "clReleaseContext")
	}
	return nil
}

// programBuildLog fetches the compiler's build log for the device. An
// empty string means the driver produced no log.
func programBuildLog(program C.cl_program, device C.cl_device_id) string {
	var size C.size_t
	status := C.clGetProgramBuildInfo(program, device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size)
	if status != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	status = C.clGetProgramBuildInfo(program, device, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

type openclProgram struct {
	program C.cl_program
}

func (p *openclProgram) CreateKernel(entry string) (BackendKernel, error) {
	centry := C.CString(entry)
	defer C.free(unsafe.Pointer(centry))

	var status C.cl_int
	kernel := C.clCreateKernel(p.program, centry, &status)
	if err := CheckStatus(Status(status), "clCreateKernel"); err != nil {
		return nil, err
	}
	return &openclKernel{kernel: kernel}, nil
}

func (p *openclProgram) Release() error {
	if p.program != nil {
		status := C.clReleaseProgram(p.program)
		p.program = nil
		return CheckStatus(Status(status), "clReleaseProgram")
	}
	return nil
}

type openclKernel struct {
	kernel C.cl_kernel
}

func (k *openclKernel) SetArg(index int, value any) error {
	if index < 0 {
		return CheckStatus(-49, "clSetKernelArg")
	}
	idx := C.cl_uint(index)

	var status C.cl_int
	switch v := value.(type) {
	case *openclBuffer:
		mem := v.mem
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
	case int:
		cv := C.cl_int(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case int32:
		cv := C.cl_int(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case uint32:
		cv := C.cl_uint(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case int64:
		cv := C.cl_long(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case uint64:
		cv := C.cl_ulong(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case float32:
		cv := C.cl_float(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	case float64:
		cv := C.cl_double(v)
		status = C.clSetKernelArg(k.kernel, idx, C.size_t(unsafe.Sizeof(cv)), unsafe.Pointer(&cv))
	default:
		return &Error{Component: "backend", Op: "setarg", Detail: fmt.Sprintf("unsupported argument type %T", value), Err: ErrInvalidUsage}
	}
	return CheckStatus(Status(status), "clSetKernelArg")
}

func (k *openclKernel) Release() error {
	if k.kernel != nil {
		status := C.clReleaseKernel(k.kernel)
		k.kernel = nil
		return CheckStatus(Status(status), "clReleaseKernel")
	}
	return nil
}

type openclQueue struct {
	queue C.cl_command_queue
}

func (q *openclQueue) EnqueueKernel(k BackendKernel, global, local []uint64, ev BackendEvent) error {
	kern, ok := k.(*openclKernel)
	if !ok || kern == nil {
		return CheckStatus(-48, "clEnqueueNDRangeKernel")
	}
	if len(global) == 0 || len(global) > 3 {
		return CheckStatus(-53, "clEnqueueNDRangeKernel")
	}

	globalSizes := make([]C.size_t, len(global))
	for i, g := range global {
		globalSizes[i] = C.size_t(g)
	}
	var localPtr *C.size_t
	if len(local) > 0 {
		localSizes := make([]C.size_t, len(local))
		for i, l := range local {
			localSizes[i] = C.size_t(l)
		}
		localPtr = &localSizes[0]
	}

	event, _ := ev.(*openclEvent)
	var newEvent C.cl_event
	var eventPtr *C.cl_event
	if event != nil {
		eventPtr = &newEvent
	}

	status := C.clEnqueueNDRangeKernel(q.queue, kern.kernel, C.cl_uint(len(global)), nil, &globalSizes[0], localPtr, 0, nil, eventPtr)
	if err := CheckStatus(Status(status), "clEnqueueNDRangeKernel"); err != nil {
		return err
	}

	// The reusable per-context event is overwritten by each enqueue.
	if event != nil {
		if event.event != nil {
			C.clReleaseEvent(event.event)
		}
		event.event = newEvent
	}
	return nil
}

func (q *openclQueue) Finish() error {
	return CheckStatus(Status(C.clFinish(q.queue)), "clFinish")
}

func (q *openclQueue) Release() error {
	if q.queue != nil {
		status := C.clReleaseCommandQueue(q.queue)
		q.queue = nil
		return CheckStatus(Status(status), "clReleaseCommandQueue")
	}
	return nil
}

type openclEvent struct {
	event C.cl_event
}

func (e *openclEvent) Elapsed() (time.Duration, error) {
	if e.event == nil {
		return 0, CheckStatus(-7, "clGetEventProfilingInfo")
	}

	var start, end C.cl_ulong
	status := C.clGetEventProfilingInfo(e.event, C.CL_PROFILING_COMMAND_START, C.size_t(unsafe.Sizeof(start)), unsafe.Pointer(&start), nil)
	if err := CheckStatus(Status(status), "clGetEventProfilingInfo(start)"); err != nil {
		return 0, err
	}
	status = C.clGetEventProfilingInfo(e.event, C.CL_PROFILING_COMMAND_END, C.size_t(unsafe.Sizeof(end)), unsafe.Pointer(&end), nil)
	if err := CheckStatus(Status(status), "clGetEventProfilingInfo(end)"); err != nil {
		return 0, err
	}
	return time.Duration(end - start), nil
}

func (e *openclEvent) Release() error {
	if e.event != nil {
		status := C.clReleaseEvent(e.event)
		e.event = nil
		return CheckStatus(Status(status), "clReleaseEvent")
	}
	return nil
}

type openclBuffer struct {
	mem C.cl_mem
}

func (b *openclBuffer) Release() error {
	if b.mem != nil {
		status := C.clReleaseMemObject(b.mem)
		b.mem = nil
		return CheckStatus(Status(status), "clReleaseMemObject")
	}
	return nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if err := CheckStatus(Status(status), "clGetPlatformInfo(size)"); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if err := CheckStatus(Status(status), "clGetPlatformInfo(value)"); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(size)"); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if err := CheckStatus(Status(status), "clGetDeviceInfo(value)"); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func getDeviceULong(id C.cl_device_id, param C.cl_device_info, op string) (uint64, error) {
	var v C.cl_ulong
	status := C.clGetDeviceInfo(id, param, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if err := CheckStatus(Status(status), op); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func trimNull(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func mapDeviceKind(dt C.cl_device_type) DeviceKind {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceAccelerator
	default:
		return DeviceUnknown
	}
}
