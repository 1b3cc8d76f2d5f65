package exec

import "testing"

func TestValue_RoundTripsFloat(t *testing.T) {
	for _, f := range []float64{0, 1.5, -42.25, 3.14159} {
		v := Float(f)
		if !IsFloat(v) {
			t.Fatalf("Float(%v) not recognized as float", f)
		}
		if got := AsFloat(v); got != f {
			t.Errorf("Float(%v) round-tripped to %v", f, got)
		}
	}
}

func TestValue_RoundTripsInt(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 123456, -123456} {
		v := Int(i)
		if IsFloat(v) {
			t.Fatalf("Int(%d) misrecognized as float", i)
		}
		if !IsInt(v) {
			t.Fatalf("Int(%d) not recognized as int", i)
		}
		if got := AsInt(v); got != i {
			t.Errorf("Int(%d) round-tripped to %d", i, got)
		}
	}
}

func TestValue_BoolAndNull(t *testing.T) {
	if !IsBool(Bool(true)) || !AsBool(Bool(true)) {
		t.Error("Bool(true) did not round-trip")
	}
	if !IsBool(Bool(false)) || AsBool(Bool(false)) {
		t.Error("Bool(false) did not round-trip")
	}
	if !IsNull(Null()) {
		t.Error("Null() not recognized as null")
	}
}

func TestValue_Handle(t *testing.T) {
	v := Handle(HandleString, 7)
	if !IsHandle(v) {
		t.Fatalf("Handle not recognized as handle")
	}
	kind, idx := AsHandle(v)
	if kind != HandleString || idx != 7 {
		t.Errorf("Handle round-tripped to (%v, %d)", kind, idx)
	}
}

func TestValue_TagsAreDisjoint(t *testing.T) {
	vals := []Value{Null(), Bool(true), Bool(false), Int(5), Handle(HandleFunc, 1)}
	for i, a := range vals {
		for j, b := range vals {
			if i == j {
				continue
			}
			if a == b {
				t.Errorf("distinct value constructors produced equal bit patterns: %v == %v", a, b)
			}
		}
	}
}
