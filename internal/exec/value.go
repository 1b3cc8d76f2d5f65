package exec

import (
	"math"
	"unsafe"
)

// Value is an 8-byte NaN-boxed runtime value: any 64-bit pattern that is
// not a quiet NaN is read directly as a float64, and the quiet-NaN space
// (where every exponent bit is set) is carved into tags for the other
// primitive kinds. This mirrors the pack's register-VM boxing scheme so
// that interp.go, like a tree-walking VM's stack slots, can keep one
// scalar type in every register and locals slot instead of a tagged
// struct, which is what the NaN-boxed-Value fast path buys: zero
// allocation for numbers, bools, null and small ints.
type Value uint64

const (
	nanMask = 0x7FF8_0000_0000_0000
	tagMask = 0xFFFF_0000_0000_0000

	tagNull  = 0x7FF8_0000_0000_0000
	tagFalse = 0x7FF8_0000_0000_0001
	tagTrue  = 0x7FF8_0000_0000_0002

	// Interned-string / function-id tag: bits 50-49 = 11, bit 48 = 0.
	tagHandle  = 0x7FFC_0000_0000_0000
	handleMask = 0x0000_FFFF_FFFF_FFFF

	// Small-int tag: bits 50-49 = 11, bit 48 = 1, bit 47 carries the sign.
	tagInt  = 0x7FFE_0000_0000_0000
	intMask = 0x0000_FFFF_FFFF_FFFF
	intSign = 0x0000_8000_0000_0000
)

// HandleKind distinguishes the object a handle-tagged Value refers to.
// Handles index into the interpreter's own heap tables rather than
// holding a raw pointer, so a Value can cross a tier-promotion boundary
// (interpreted <-> JIT-compiled code) without the receiving tier needing
// to know the Go-side object layout.
type HandleKind uint8

const (
	// HandleString identifies an interned-string handle.
	HandleString HandleKind = iota
	// HandleFunc identifies a function-id handle (a closure or bare fn).
	HandleFunc
	// HandleHeap identifies a heap-table handle (array/map/struct/tag).
	HandleHeap
)

// Null returns the boxed null value.
func Null() Value { return tagNull }

// Bool boxes a bool.
func Bool(b bool) Value {
	if b {
		return tagTrue
	}
	return tagFalse
}

// Float boxes a float64. Every non-NaN-tagged bit pattern round-trips
// through Value unchanged, so this is the identity fast path the type
// mentions in its doc comment.
func Float(f float64) Value {
	return Value(math.Float64bits(f))
}

// Int boxes an int64 using the 48-bit small-int encoding when it fits,
// falling back to a float64 representation otherwise (matching the
// pack's NaN-boxed Value, which accepts the same precision trade-off
// above 2^47).
func Int(i int64) Value {
	if i >= -(1<<47) && i < (1<<47) {
		return Value(tagInt | uint64(i)&intMask)
	}
	return Float(float64(i))
}

// Handle boxes a handle index with the given kind tag folded into its
// top byte, so AsHandle can recover which table to look the index up in
// without a second word of storage.
func Handle(kind HandleKind, index uint64) Value {
	return Value(tagHandle | (uint64(kind) << 40 & 0x0000_FF00_0000_0000) | (index & 0x0000_00FF_FFFF_FFFF))
}

// IsFloat reports whether v holds a float64 (i.e. is not one of the
// tagged quiet-NaN patterns).
func IsFloat(v Value) bool {
	return uint64(v)&nanMask != nanMask
}

// IsNull reports whether v is the boxed null value.
func IsNull(v Value) bool { return v == tagNull }

// IsBool reports whether v is a boxed bool.
func IsBool(v Value) bool { return v == tagTrue || v == tagFalse }

// IsInt reports whether v holds a small-int encoding.
func IsInt(v Value) bool { return uint64(v)&tagMask == tagInt }

// IsHandle reports whether v holds a handle.
func IsHandle(v Value) bool { return uint64(v)&tagMask == tagHandle }

// AsFloat unboxes v as a float64; callers must have checked IsFloat.
func AsFloat(v Value) float64 { return math.Float64frombits(uint64(v)) }

// AsBool unboxes v as a bool; callers must have checked IsBool.
func AsBool(v Value) bool { return v == tagTrue }

// AsInt unboxes v as an int64, sign-extending from the 48-bit field;
// callers must have checked IsInt.
func AsInt(v Value) int64 {
	raw := int64(uint64(v) & intMask)
	if raw&intSign != 0 {
		return raw | ^int64(intMask)
	}
	return raw
}

// AsHandle unboxes v's kind and index; callers must have checked IsHandle.
func AsHandle(v Value) (HandleKind, uint64) {
	bits := uint64(v)
	kind := HandleKind((bits & 0x0000_FF00_0000_0000) >> 40)
	return kind, bits & 0x0000_00FF_FFFF_FFFF
}

// sizeCheck keeps Value an 8-byte scalar; a regression here would break
// the register-file array-of-Value layout interp.go depends on.
var _ = unsafe.Sizeof(Value(0))
