package flash

// Memory is an in-RAM NOR flash. It keeps a per-page erase counter so callers
// can check how wear is spread.
type Memory struct {
	data     []byte
	pageSize int
	erase    byte
	erases   []int

	// Strict rejects writes that would need a bit to return to the erase
	// value. A real part silently keeps the programmed bit.
	Strict bool
}

// NewMemory returns a fully erased device of pages*pageSize bytes.
func NewMemory(pageSize, pages int, erase byte) *Memory {
	return &Memory{
		data:     erased(pageSize*pages, erase),
		pageSize: pageSize,
		erase:    erase,
		erases:   make([]int, pages),
		Strict:   true,
	}
}

func (m *Memory) PageSize() int    { return m.pageSize }
func (m *Memory) Size() int        { return len(m.data) }
func (m *Memory) EraseValue() byte { return m.erase }

func (m *Memory) Read(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf), len(m.data)); err != nil {
		return err
	}
	copy(buf, m.data[addr:])
	return nil
}

func (m *Memory) Write(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data), len(m.data)); err != nil {
		return err
	}
	return program(m.data[addr:int(addr)+len(data)], data, m.erase, m.Strict, addr)
}

func (m *Memory) ErasePage(addr uint32) error {
	if err := checkPage(addr, m.pageSize, len(m.data)); err != nil {
		return err
	}
	copy(m.data[addr:], erased(m.pageSize, m.erase))
	m.erases[int(addr)/m.pageSize]++
	return nil
}

// EraseCount is how many times the page holding addr has been erased.
func (m *Memory) EraseCount(addr uint32) int {
	return m.erases[int(addr)/m.pageSize]
}

// Image returns a copy of the raw flash contents.
func (m *Memory) Image() []byte {
	return append([]byte(nil), m.data...)
}

// Restore overwrites the raw contents with img, bypassing program rules. It
// stands in for a power cycle that left the flash in a given state.
func (m *Memory) Restore(img []byte) {
	copy(m.data, img)
}
