// Package cache implements the on-disk incremental module cache: compiled
// MIR for a module is stored keyed by a content hash so a later compile of
// an unchanged module (and unchanged dependencies) can skip straight to
// linking/execution instead of re-running semantic analysis and lowering.
//
// The on-disk format is a small binary envelope (magic "BLAD", a uint32
// version, then a msgpack-encoded Entry) wrapped around the teacher pack's
// disk-cache idiom (internal/driver/dcache.go): atomic write via
// CreateTemp+Rename, content-hash-derived file names, msgpack payloads.
package cache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies a rayzor module cache file. Four bytes chosen to read
// back as "BLAD" in a hex dump.
var magic = [4]byte{'B', 'L', 'A', 'D'}

// formatVersion is bumped whenever Entry's shape changes in a way that
// would make an old cache file misdecode instead of cleanly failing.
const formatVersion uint32 = 1

// ErrBadMagic is returned by readEnvelope when the file does not start with
// the expected magic bytes - almost always because the path does not point
// at a module cache file at all.
var ErrBadMagic = fmt.Errorf("cache: bad magic (not a rayzor module cache file)")

// ErrVersionMismatch is returned when the file's format version does not
// match formatVersion. Callers should treat this as a cache miss, not an
// error: it is the expected outcome right after a compiler upgrade.
var ErrVersionMismatch = fmt.Errorf("cache: format version mismatch")

func writeEnvelope(w io.Writer, payload []byte) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], formatVersion)
	if _, err := bw.Write(versionBuf[:]); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

// readEnvelope validates the header and returns the msgpack payload bytes.
func readEnvelope(r io.Reader) ([]byte, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, ErrBadMagic
	}
	var versionBuf [4]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(versionBuf[:]) != formatVersion {
		return nil, ErrVersionMismatch
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
