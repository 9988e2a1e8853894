package compute

import "fmt"

// Status is a raw status code returned by a compute backend. Zero is
// success; every failure code is negative.
type Status int32

// statusInfo pairs a status code's symbolic name with the failure class
// it maps into. A nil kind means the code carries no taxonomy class of
// its own.
type statusInfo struct {
	name string
	kind error
}

// statusTable maps every backend status code to its name and failure
// class: -1..-19 are runtime errors, -30..-70 compile-time errors,
// -1000..-1009 extension errors, -9999 the NVIDIA illegal-access code.
var statusTable = map[Status]statusInfo{
	0:     {"CL_SUCCESS", nil},
	-1:    {"CL_DEVICE_NOT_FOUND", ErrNoDevices},
	-2:    {"CL_DEVICE_NOT_AVAILABLE", ErrInvalidUsage},
	-3:    {"CL_COMPILER_NOT_AVAILABLE", ErrBuildFailed},
	-4:    {"CL_MEM_OBJECT_ALLOCATION_FAILURE", ErrOutOfMemory},
	-5:    {"CL_OUT_OF_RESOURCES", ErrOutOfMemory},
	-6:    {"CL_OUT_OF_HOST_MEMORY", ErrOutOfMemory},
	-7:    {"CL_PROFILING_INFO_NOT_AVAILABLE", ErrNoTiming},
	-8:    {"CL_MEM_COPY_OVERLAP", ErrInvalidUsage},
	-9:    {"CL_IMAGE_FORMAT_MISMATCH", ErrInvalidUsage},
	-10:   {"CL_IMAGE_FORMAT_NOT_SUPPORTED", ErrInvalidUsage},
	-11:   {"CL_BUILD_PROGRAM_FAILURE", ErrBuildFailed},
	-12:   {"CL_MAP_FAILURE", ErrInvalidUsage},
	-13:   {"CL_MISALIGNED_SUB_BUFFER_OFFSET", ErrInvalidUsage},
	-14:   {"CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST", ErrInvalidUsage},
	-15:   {"CL_COMPILE_PROGRAM_FAILURE", ErrBuildFailed},
	-16:   {"CL_LINKER_NOT_AVAILABLE", ErrBuildFailed},
	-17:   {"CL_LINK_PROGRAM_FAILURE", ErrBuildFailed},
	-18:   {"CL_DEVICE_PARTITION_FAILED", ErrInvalidUsage},
	-19:   {"CL_KERNEL_ARG_INFO_NOT_AVAILABLE", ErrInvalidUsage},
	-30:   {"CL_INVALID_VALUE", ErrInvalidUsage},
	-31:   {"CL_INVALID_DEVICE_TYPE", ErrInvalidUsage},
	-32:   {"CL_INVALID_PLATFORM", ErrInvalidUsage},
	-33:   {"CL_INVALID_DEVICE", ErrInvalidUsage},
	-34:   {"CL_INVALID_CONTEXT", ErrInvalidUsage},
	-35:   {"CL_INVALID_QUEUE_PROPERTIES", ErrInvalidUsage},
	-36:   {"CL_INVALID_COMMAND_QUEUE", ErrInvalidUsage},
	-37:   {"CL_INVALID_HOST_PTR", ErrInvalidUsage},
	-38:   {"CL_INVALID_MEM_OBJECT", ErrInvalidUsage},
	-39:   {"CL_INVALID_IMAGE_FORMAT_DESCRIPTOR", ErrInvalidUsage},
	-40:   {"CL_INVALID_IMAGE_SIZE", ErrInvalidUsage},
	-41:   {"CL_INVALID_SAMPLER", ErrInvalidUsage},
	-42:   {"CL_INVALID_BINARY", ErrBuildFailed},
	-43:   {"CL_INVALID_BUILD_OPTIONS", ErrBuildFailed},
	-44:   {"CL_INVALID_PROGRAM", ErrInvalidUsage},
	-45:   {"CL_INVALID_PROGRAM_EXECUTABLE", ErrInvalidUsage},
	-46:   {"CL_INVALID_KERNEL_NAME", ErrInvalidUsage},
	-47:   {"CL_INVALID_KERNEL_DEFINITION", ErrInvalidUsage},
	-48:   {"CL_INVALID_KERNEL", ErrInvalidUsage},
	-49:   {"CL_INVALID_ARG_INDEX", ErrInvalidUsage},
	-50:   {"CL_INVALID_ARG_VALUE", ErrInvalidUsage},
	-51:   {"CL_INVALID_ARG_SIZE", ErrInvalidUsage},
	-52:   {"CL_INVALID_KERNEL_ARGS", ErrInvalidUsage},
	-53:   {"CL_INVALID_WORK_DIMENSION", ErrInvalidUsage},
	-54:   {"CL_INVALID_WORK_GROUP_SIZE", ErrInvalidUsage},
	-55:   {"CL_INVALID_WORK_ITEM_SIZE", ErrInvalidUsage},
	-56:   {"CL_INVALID_GLOBAL_OFFSET", ErrInvalidUsage},
	-57:   {"CL_INVALID_EVENT_WAIT_LIST", ErrInvalidUsage},
	-58:   {"CL_INVALID_EVENT", ErrInvalidUsage},
	-59:   {"CL_INVALID_OPERATION", ErrInvalidUsage},
	-60:   {"CL_INVALID_GL_OBJECT", ErrInvalidUsage},
	-61:   {"CL_INVALID_BUFFER_SIZE", ErrOutOfMemory},
	-62:   {"CL_INVALID_MIP_LEVEL", ErrInvalidUsage},
	-63:   {"CL_INVALID_GLOBAL_WORK_SIZE", ErrInvalidUsage},
	-64:   {"CL_INVALID_PROPERTY", ErrInvalidUsage},
	-65:   {"CL_INVALID_IMAGE_DESCRIPTOR", ErrInvalidUsage},
	-66:   {"CL_INVALID_COMPILER_OPTIONS", ErrBuildFailed},
	-67:   {"CL_INVALID_LINKER_OPTIONS", ErrBuildFailed},
	-68:   {"CL_INVALID_DEVICE_PARTITION_COUNT", ErrInvalidUsage},
	-69:   {"CL_INVALID_PIPE_SIZE", ErrInvalidUsage},
	-70:   {"CL_INVALID_DEVICE_QUEUE", ErrInvalidUsage},
	-1000: {"CL_INVALID_GL_SHAREGROUP_REFERENCE_KHR", ErrInvalidUsage},
	-1001: {"CL_PLATFORM_NOT_FOUND_KHR", ErrNoDevices},
	-1002: {"CL_INVALID_D3D10_DEVICE_KHR", ErrInvalidUsage},
	-1003: {"CL_INVALID_D3D10_RESOURCE_KHR", ErrInvalidUsage},
	-1004: {"CL_D3D10_RESOURCE_ALREADY_ACQUIRED_KHR", ErrInvalidUsage},
	-1005: {"CL_D3D10_RESOURCE_NOT_ACQUIRED_KHR", ErrInvalidUsage},
	-1006: {"CL_INVALID_D3D11_DEVICE_KHR", ErrInvalidUsage},
	-1007: {"CL_INVALID_D3D11_RESOURCE_KHR", ErrInvalidUsage},
	-1008: {"CL_D3D11_RESOURCE_ALREADY_ACQUIRED_KHR", ErrInvalidUsage},
	-1009: {"CL_D3D11_RESOURCE_NOT_ACQUIRED_KHR", ErrInvalidUsage},
	-9999: {"NVIDIA_ILLEGAL_BUFFER_READ_OR_WRITE", ErrInvalidUsage},
}

// Name returns the symbolic name of the status code.
func (s Status) Name() string {
	if info, ok := statusTable[s]; ok {
		return info.name
	}
	return "CL_UNKNOWN_ERROR"
}

// StatusError is a backend call failure identified by its status code.
type StatusError struct {
	Op   string
	Code Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Code.Name(), int32(e.Code))
}

// Is maps the status code onto the failure-class sentinels, so that
// errors.Is(err, ErrOutOfMemory) matches a CL_MEM_OBJECT_ALLOCATION_FAILURE.
func (e *StatusError) Is(target error) bool {
	info, ok := statusTable[e.Code]
	return ok && info.kind != nil && target == info.kind
}

// CheckStatus converts a backend status code into an error: nil for
// success, otherwise a *StatusError naming the failed call.
func CheckStatus(code Status, op string) error {
	if code == 0 {
		return nil
	}
	return &StatusError{Op: op, Code: code}
}
