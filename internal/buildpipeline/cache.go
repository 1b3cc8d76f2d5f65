package buildpipeline

import (
	"rayzor/internal/cache"
	"rayzor/internal/driver"
	"rayzor/internal/mir"
	"rayzor/internal/version"
)

// storeCompiledMIR persists a successfully validated MIR module to the
// incremental module cache, best-effort: a cache write failure never fails
// the compile, it only means the next invocation recompiles from scratch.
func storeCompiledMIR(diagRes *driver.DiagnoseResult, mod *mir.Module) {
	if diagRes == nil || mod == nil {
		return
	}
	meta := diagRes.RootModuleMeta()
	if meta == nil || meta.ContentHash == cache.ZeroDigest {
		return
	}

	store, err := cache.OpenDefault()
	if err != nil {
		return
	}

	key := cache.Key(meta.ContentHash, meta.ModuleHash)
	entry := &cache.Entry{
		Name:            meta.Name,
		Path:            meta.Path,
		SourceHash:      meta.ContentHash,
		DependencyHash:  meta.ModuleHash,
		CompilerVersion: version.VersionString(),
		MIR:             mod,
	}
	_ = store.Put(key, entry)
}
