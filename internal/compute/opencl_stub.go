//go:build !gpu

package compute

// NewOpenCLBackend reports that OpenCL support was not compiled in.
// Build with -tags gpu and an OpenCL SDK installed to enable it.
func NewOpenCLBackend() (Backend, error) {
	return nil, ErrNotBuilt
}
