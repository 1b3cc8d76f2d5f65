package mir

import (
	"rayzor/internal/source"
	"rayzor/internal/symbols"
	"rayzor/internal/types"
)

// Sig carries the calling-convention facts Validate and the execution
// engine need that aren't derivable from a single glance at Result:
// whether a call to this function can unwind via InstrThrow/TermThrow
// instead of returning normally, and whether its result is returned
// indirectly through a hidden pointer argument (struct-return, SRET)
// rather than in registers.
type Sig struct {
	CanThrow bool
	UsesSRET bool
}

// Func represents a function in MIR.
type Func struct {
	ID   FuncID
	Sym  symbols.SymbolID
	Name string
	Span source.Span

	Result         types.TypeID
	IsAsync        bool
	Failfast       bool
	AsyncLoweredV2 bool
	ParamCount     int
	Sig            Sig

	Locals []Local
	Blocks []Block
	Entry  BlockID

	ScopeLocal LocalID
}
