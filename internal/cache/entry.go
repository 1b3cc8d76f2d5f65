package cache

import (
	"rayzor/internal/mir"
	"rayzor/internal/project"
)

// ZeroDigest is the zero-value project.Digest, used to detect callers that
// never computed a real content hash.
var ZeroDigest project.Digest

// entrySchemaVersion is the Entry payload shape version, independent of the
// envelope's formatVersion: bump when fields are added/removed so a reader
// can distinguish "old but decodable" from "must recompile".
const entrySchemaVersion uint16 = 1

// Dep identifies one dependency this entry was compiled against, so a
// lookup can detect that a dependency's exports changed even though the
// module's own source did not.
type Dep struct {
	Path           string
	ModuleHash     project.Digest
	DependencyHash project.Digest
}

// Entry is the cached unit for one module: its identity, the hashes needed
// to detect staleness, and the compiled MIR.
type Entry struct {
	Schema uint16

	Name string
	Path string

	// SourceHash hashes the module's own file contents.
	SourceHash project.Digest
	// DependencyHash hashes the combined exports of every module this one
	// depends on; a mismatch invalidates the entry even if SourceHash is
	// unchanged.
	DependencyHash project.Digest
	// CompilerVersion ties an entry to the compiler build that produced it;
	// mismatched entries are never returned to callers.
	CompilerVersion string

	Deps []Dep

	// Broken records that the module had compile errors; such entries are
	// kept (so `rayzor build` can skip re-diagnosing an unchanged broken
	// module and just replay its diagnostics) but never substituted for a
	// good compile.
	Broken bool

	MIR *mir.Module
}

// Key computes the cache key for an entry: the source hash folded together
// with the dependency hash, so either changing makes a new key.
func Key(sourceHash, dependencyHash project.Digest) project.Digest {
	return project.Combine(sourceHash, dependencyHash)
}
