package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// defaultBuildOptions is the baseline flag set handed to the backend
// compiler when no custom options are supplied.
const defaultBuildOptions = "-cl-std=CL1.2 -cl-kernel-arg-info -w -Werror"

// CompileOptions adjusts the build-option string for one compilation.
// Custom replaces the default option string entirely; Additional appends
// to it. Supplying both is invalid usage, rejected before the backend or
// the filesystem is touched.
type CompileOptions struct {
	Custom     string
	Additional string
}

// resolveOptions composes the final option string from opts.
func resolveOptions(opts CompileOptions) (string, error) {
	if opts.Custom != "" && opts.Additional != "" {
		return "", &Error{Component: "kernel", Op: "compile", Detail: "custom and additional build options are mutually exclusive", Err: ErrInvalidUsage}
	}
	if opts.Custom != "" {
		return opts.Custom, nil
	}
	if opts.Additional != "" {
		return defaultBuildOptions + " " + opts.Additional, nil
	}
	return defaultBuildOptions, nil
}

// Kernel is a compiled kernel entry point, cached by the compiler and
// bound to the context it was built on. Immutable once compiled.
type Kernel struct {
	source  string
	entry   string
	options string
	ctx     *Context
	program BackendProgram
	kernel  BackendKernel
}

// Source returns the path the kernel was compiled from.
func (k *Kernel) Source() string { return k.source }

// Entry returns the kernel's entry-point name.
func (k *Kernel) Entry() string { return k.entry }

// Options returns the resolved build-option string.
func (k *Kernel) Options() string { return k.options }

// Context returns the context the kernel was compiled for.
func (k *Kernel) Context() *Context { return k.ctx }

// SetArg binds value to the kernel argument slot at index. Buffer values
// are unwrapped to their backend handles before they reach the driver.
func (k *Kernel) SetArg(index int, value any) error {
	if index < 0 {
		return &Error{Component: "kernel", Op: "setarg", Detail: fmt.Sprintf("argument index %d", index), Err: ErrInvalidUsage}
	}
	if buf, ok := value.(*Buffer); ok {
		if buf == nil || buf.freed {
			return &Error{Component: "kernel", Op: "setarg", Detail: fmt.Sprintf("released buffer for argument %d", index), Err: ErrInvalidUsage}
		}
		value = buf.handle
	}
	if err := k.kernel.SetArg(index, value); err != nil {
		return &Error{Component: "kernel", Op: "setarg", Detail: fmt.Sprintf("%s argument %d", k.entry, index), Err: err}
	}
	return nil
}

// kernelKey identifies one compiled artifact. The same source compiled on
// another context, under another entry point, or with other options is a
// separate cache entry.
type kernelKey struct {
	contextID int
	source    string
	entry     string
	options   string
}

// Compiler reads kernel sources, resolves build options, and memoizes
// compiled kernels per (context, source, entry, options) tuple. The cache
// only grows; compiled kernels live until the manager closes.
type Compiler struct {
	cache map[kernelKey]*Kernel
}

// NewCompiler creates a compiler with an empty cache.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[kernelKey]*Kernel)}
}

// Compile returns the kernel for (ctx, sourcePath, entry, opts), building
// it through the backend only on the first request for that tuple. A
// repeated request returns the previously compiled *Kernel itself. The
// option check and the source read both happen before any backend call;
// a failed build surfaces the backend's log in a *BuildError.
func (c *Compiler) Compile(ctx *Context, sourcePath, entry string, opts CompileOptions) (*Kernel, error) {
	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	key := kernelKey{contextID: ctx.id, source: sourcePath, entry: entry, options: options}
	if k, ok := c.cache[key]; ok {
		slog.Debug("kernel cache hit", "source", sourcePath, "entry", entry, "context", ctx.id)
		return k, nil
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Component: "kernel", Op: "compile", Detail: sourcePath, Err: ErrSourceNotFound}
		}
		return nil, &Error{Component: "kernel", Op: "compile", Detail: sourcePath, Err: err}
	}

	program, err := ctx.backend.CompileProgram(string(data), options)
	if err != nil {
		var buildErr *BuildError
		if errors.As(err, &buildErr) {
			buildErr.Source = sourcePath
			buildErr.Entry = entry
			buildErr.Options = options
		}
		return nil, &Error{Component: "kernel", Op: "compile", Detail: sourcePath, Err: err}
	}

	kern, err := program.CreateKernel(entry)
	if err != nil {
		program.Release()
		return nil, &Error{Component: "kernel", Op: "compile", Detail: fmt.Sprintf("%s entry %q", sourcePath, entry), Err: err}
	}

	k := &Kernel{
		source:  sourcePath,
		entry:   entry,
		options: options,
		ctx:     ctx,
		program: program,
		kernel:  kern,
	}
	c.cache[key] = k
	slog.Info("kernel compiled", "source", sourcePath, "entry", entry, "context", ctx.id, "options", options)
	return k, nil
}

// Kernels returns every cached kernel.
func (c *Compiler) Kernels() []*Kernel {
	out := make([]*Kernel, 0, len(c.cache))
	for _, k := range c.cache {
		out = append(out, k)
	}
	return out
}

// releaseAll releases every cached kernel and clears the cache. Called
// first during manager teardown, before queues, events, and contexts go.
func (c *Compiler) releaseAll() error {
	var errs []error
	for _, k := range c.cache {
		if err := k.kernel.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release kernel %s: %w", k.entry, err))
		}
		if err := k.program.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release program %s: %w", k.source, err))
		}
	}
	c.cache = make(map[kernelKey]*Kernel)
	return errors.Join(errs...)
}
