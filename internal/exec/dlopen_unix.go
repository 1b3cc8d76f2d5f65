//go:build !windows

package exec

// #include <dlfcn.h>
// #include <stdint.h>
// #include <stdlib.h>
//
// typedef int64_t (*fn0)(void);
// typedef int64_t (*fn1)(int64_t);
// typedef int64_t (*fn2)(int64_t, int64_t);
// typedef int64_t (*fn3)(int64_t, int64_t, int64_t);
// typedef int64_t (*fn4)(int64_t, int64_t, int64_t, int64_t);
//
// static int64_t call_fn0(void *p) { return ((fn0)p)(); }
// static int64_t call_fn1(void *p, int64_t a0) { return ((fn1)p)(a0); }
// static int64_t call_fn2(void *p, int64_t a0, int64_t a1) { return ((fn2)p)(a0, a1); }
// static int64_t call_fn3(void *p, int64_t a0, int64_t a1, int64_t a2) { return ((fn3)p)(a0, a1, a2); }
// static int64_t call_fn4(void *p, int64_t a0, int64_t a1, int64_t a2, int64_t a3) { return ((fn4)p)(a0, a1, a2, a3); }
import "C"

import (
	"fmt"
	"unsafe"
)

// nativeHandle wraps a dlopen'd shared object: the in-process compile
// target fastjit.go/optjit.go load function pointers out of once
// backend/llvm + clang have produced it, mirroring the object-emission
// path buildpipeline.Build already drives for the ahead-of-time
// `--backend=llvm` output, just kept resident instead of linked into a
// final executable.
type nativeHandle struct {
	lib unsafe.Pointer
}

func dlopenLibrary(path string) (*nativeHandle, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	lib := C.dlopen(cpath, C.RTLD_NOW)
	if lib == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	return &nativeHandle{lib: lib}, nil
}

func (h *nativeHandle) symbol(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.dlsym(h.lib, cname)
	if sym == nil {
		return nil, fmt.Errorf("dlsym %s: %s", name, C.GoString(C.dlerror()))
	}
	return sym, nil
}

func (h *nativeHandle) close() error {
	if C.dlclose(h.lib) != 0 {
		return fmt.Errorf("dlclose: %s", C.GoString(C.dlerror()))
	}
	return nil
}

// callNative invokes a dlsym'd function pointer of up to 4 int64
// arguments, the fixed ABI nativeTrampoline restricts JIT-eligible
// functions to (see fastjit.go). There is no generic N-arity C calling
// convention reachable from Go without either cgo-declared typedefs per
// arity (what this does) or hand-written per-platform assembly stubs
// (what a full FFI library like the ones purego-style trampolines use
// would add); capping the arity keeps this to the former.
func callNative(fp unsafe.Pointer, args []int64) (int64, error) {
	switch len(args) {
	case 0:
		return int64(C.call_fn0(fp)), nil
	case 1:
		return int64(C.call_fn1(fp, C.int64_t(args[0]))), nil
	case 2:
		return int64(C.call_fn2(fp, C.int64_t(args[0]), C.int64_t(args[1]))), nil
	case 3:
		return int64(C.call_fn3(fp, C.int64_t(args[0]), C.int64_t(args[1]), C.int64_t(args[2]))), nil
	case 4:
		return int64(C.call_fn4(fp, C.int64_t(args[0]), C.int64_t(args[1]), C.int64_t(args[2]), C.int64_t(args[3]))), nil
	default:
		return 0, fmt.Errorf("native trampoline supports at most 4 arguments, got %d", len(args))
	}
}
