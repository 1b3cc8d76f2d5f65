package runtime_test

import (
	"errors"
	"testing"

	"rayzor/internal/runtime"
)

func TestNewRegistry_ResolvesKnownSymbols(t *testing.T) {
	r := runtime.NewRegistry()

	tests := []struct {
		symbol       string
		wantCategory runtime.Category
		wantParams   int
		wantOut      bool
		wantSelf     bool
	}{
		{"rt_alloc", runtime.CategoryAllocator, 2, false, false},
		{"rt_free", runtime.CategoryAllocator, 3, false, false},
		{"rt_string_concat", runtime.CategoryString, 2, false, false},
		{"rt_array_get", runtime.CategoryArray, 1, true, true},
		{"rt_map_set", runtime.CategoryMap, 2, false, true},
		{"rt_chan_try_recv", runtime.CategoryChannel, 0, true, true},
		{"rt_mutex_lock", runtime.CategoryMutex, 0, false, true},
		{"rt_shared_retain", runtime.CategorySharedPtr, 0, false, true},
		{"rt_write_stdout", runtime.CategoryIO, 2, false, false},
	}

	for _, tt := range tests {
		entry, err := r.Resolve(tt.symbol)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.symbol, err)
		}
		if entry.Category != tt.wantCategory {
			t.Errorf("%s: category = %v, want %v", tt.symbol, entry.Category, tt.wantCategory)
		}
		if entry.ParamCount != tt.wantParams {
			t.Errorf("%s: ParamCount = %d, want %d", tt.symbol, entry.ParamCount, tt.wantParams)
		}
		if entry.PrependOut != tt.wantOut {
			t.Errorf("%s: PrependOut = %v, want %v", tt.symbol, entry.PrependOut, tt.wantOut)
		}
		if entry.PrependSelf != tt.wantSelf {
			t.Errorf("%s: PrependSelf = %v, want %v", tt.symbol, entry.PrependSelf, tt.wantSelf)
		}
	}
}

func TestNewRegistry_MissingSymbolIsLinkError(t *testing.T) {
	r := runtime.NewRegistry()

	_, err := r.Resolve("rt_does_not_exist")
	if err == nil {
		t.Fatal("expected an error for an unregistered symbol")
	}

	var linkErr *runtime.LinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("expected *runtime.LinkError, got %T", err)
	}
	if linkErr.Symbol != "rt_does_not_exist" {
		t.Errorf("LinkError.Symbol = %q, want %q", linkErr.Symbol, "rt_does_not_exist")
	}
}

func TestNewRegistry_RawBitsEntriesCarryMasks(t *testing.T) {
	r := runtime.NewRegistry()

	entry, err := r.Resolve("rt_chan_is_closed")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !entry.RawBitsReturn {
		t.Fatal("rt_chan_is_closed should return raw bits")
	}
	if entry.RawBitsMask != 0x1 {
		t.Errorf("RawBitsMask = %#x, want 0x1", entry.RawBitsMask)
	}
}

func TestNewRegistry_LenCoversAllCategories(t *testing.T) {
	r := runtime.NewRegistry()
	if r.Len() == 0 {
		t.Fatal("expected a non-empty registry")
	}
}
