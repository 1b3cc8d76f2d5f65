package exec

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"rayzor/internal/backend/llvm"
	"rayzor/internal/mir"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// nativeModule is one dlopen'd build of ex.Module at a given clang
// optimization level. T1/T2 and T3 each get their own build and cache
// slot on the Executor, since they are meant to differ by optimization
// level even though they share every other step of the pipeline.
type nativeModule struct {
	once sync.Once
	lib  *nativeHandle
	dir  string
	err  error
}

// ensureNativeModule compiles ex.Module through backend/llvm exactly as
// buildpipeline.Build does for the ahead-of-time --backend=llvm output,
// except it stops one step short of linking a standalone executable:
// the object is linked into a shared object this process then dlopens,
// so a single compile per optLevel serves every function's JIT
// promotion at that tier rather than one compile per function.
// backend/llvm emits whole-module IR (string tables and globals are
// module-scoped), so there is no cheaper per-function alternative to
// reach for here.
func (ex *Executor) ensureNativeModule(slot *nativeModule, optLevel string) (*nativeHandle, error) {
	slot.once.Do(func() {
		slot.lib, slot.dir, slot.err = compileNativeModule(ex.Module, ex.Types, ex.Symbols, optLevel)
	})
	return slot.lib, slot.err
}

func compileNativeModule(mod *mir.Module, in *types.Interner, syms *symbols.Table, optLevel string) (*nativeHandle, string, error) {
	if err := ensureClangAvailable(); err != nil {
		return nil, "", err
	}
	ir, err := llvm.EmitModule(mod, in, syms)
	if err != nil {
		return nil, "", fmt.Errorf("exec: JIT emit failed: %w", err)
	}

	dir, err := os.MkdirTemp("", "rayzor-jit-*")
	if err != nil {
		return nil, "", fmt.Errorf("exec: JIT scratch dir: %w", err)
	}
	llPath := filepath.Join(dir, "jit.ll")
	if err := os.WriteFile(llPath, []byte(ir), 0o600); err != nil {
		return nil, "", fmt.Errorf("exec: JIT write IR: %w", err)
	}
	soPath := filepath.Join(dir, "jit.so")
	args := []string{optLevel, "-shared", "-fPIC", "-x", "ir", llPath, "-o", soPath}
	if err := runCommand(false, "clang", args...); err != nil {
		return nil, "", fmt.Errorf("exec: JIT shared-object link failed: %w", err)
	}

	lib, err := dlopenLibrary(soPath)
	if err != nil {
		return nil, "", fmt.Errorf("exec: JIT dlopen failed: %w", err)
	}
	return lib, dir, nil
}

func ensureClangAvailable() error {
	if _, err := exec.LookPath("clang"); err != nil {
		return fmt.Errorf("exec: clang not found, required for JIT promotion: %w", err)
	}
	return nil
}

// runCommand mirrors buildpipeline's command-running helper: run a
// native tool and fold its stderr into the returned error rather than
// letting it spill onto this process's own stderr, since JIT compiles
// happen on a background worker and a failure is logged, not fatal.
func runCommand(printCommands bool, name string, args ...string) error {
	if printCommands {
		fmt.Fprintf(os.Stdout, "%s %s\n", name, strings.Join(args, " "))
	}
	cmd := exec.Command(name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return err
		}
		return fmt.Errorf("%s: %s", name, msg)
	}
	return nil
}

