package swpipeline

// versionMap is V from spec.md §3: for an original value, an indexed
// vector of length S+1 of replacement values. Index j holds "the value v
// becomes in the j-th peeled copy" (prologue) or "the value of v for an
// iteration logically S-j ahead of the current kernel iteration" (kernel
// and epilogue). Empty slots are legal; reading one is a bug and asserts.
type versionMap struct {
	size int // S+1
	rows map[Value][]versionSlot
}

type versionSlot struct {
	filled bool
	value  Value
}

func newVersionMap(size int) *versionMap {
	return &versionMap{size: size, rows: make(map[Value][]versionSlot)}
}

func (vm *versionMap) row(v Value) []versionSlot {
	row, ok := vm.rows[v]
	if !ok {
		row = make([]versionSlot, vm.size)
		vm.rows[v] = row
	}
	return row
}

// set records that v's version at idx is val.
func (vm *versionMap) set(v Value, idx int, val Value) {
	assertf(idx >= 0 && idx < vm.size, "version index %d out of range [0,%d)", idx, vm.size)
	row := vm.row(v)
	row[idx] = versionSlot{filled: true, value: val}
	vm.rows[v] = row
}

// get returns v's version at idx. Reading an empty slot is always a bug
// in this package (a caller skipping a prerequisite phase), so it
// panics rather than returning a zero value that would silently
// miscompile the IR.
func (vm *versionMap) get(v Value, idx int) Value {
	assertf(idx >= 0 && idx < vm.size, "version index %d out of range [0,%d)", idx, vm.size)
	row, ok := vm.rows[v]
	if !ok || !row[idx].filled {
		assertf(false, "read of empty version-map slot for value %v at index %d", v, idx)
	}
	return row[idx].value
}

// has reports whether v has a recorded version at idx, without panicking.
func (vm *versionMap) has(v Value, idx int) bool {
	if idx < 0 || idx >= vm.size {
		return false
	}
	row, ok := vm.rows[v]
	return ok && row[idx].filled
}
