package vm

// cell is the heap box a captured local lives in once resolver promotion
// marks its slot (compiler.CodeObject.Cells). LOADLOCAL/STORELOCAL address
// a Local and a Cell slot identically; the frame auto-derefs a cell on
// load and auto-writes through it on store (lang/vm/frame.go), so no
// distinct opcode pair is needed for boxed vs. unboxed locals.
type cell struct{ v Value }

var _ Value = (*cell)(nil)

func newCell(v Value) *cell { return &cell{v: v} }

func (c *cell) String() string { return c.v.String() }
func (c *cell) Type() string   { return c.v.Type() }
