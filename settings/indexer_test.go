package settings

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pro0o/deslocado/config"
	"github.com/pro0o/deslocado/flash"
	"github.com/pro0o/deslocado/types"
)

// reopen builds a fresh store over dev, as after a reboot.
func reopen(t *testing.T, dev flash.Device) *Store {
	t.Helper()
	s, err := New(dev, &config.Config{
		PageSize:   dev.PageSize(),
		TotalPages: dev.Size() / dev.PageSize(),
		EraseValue: dev.EraseValue(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

// cutDevice fails the first write that matches cut.
type cutDevice struct {
	flash.Device
	cut  func(addr uint32, data []byte) bool
	done bool
}

var errPowerLoss = errors.New("power lost")

func (d *cutDevice) Write(addr uint32, data []byte) error {
	if !d.done && d.cut(addr, data) {
		d.done = true
		return errPowerLoss
	}
	return d.Device.Write(addr, data)
}

func TestInitFormatsBlankFlash(t *testing.T) {
	for _, p := range polarities {
		t.Run(p.name, func(t *testing.T) {
			s, dev := newTestStore(t, 1024, 4, p.erase)

			st := s.Stats()
			if st.Region != 0 || st.UsedSize != types.MarkerSize || st.Capacity != 2048 {
				t.Fatalf("unexpected stats on blank flash: %+v", st)
			}

			buf := make([]byte, types.MarkerSize)
			dev.Read(0, buf)
			if !types.IsMarker(buf) {
				t.Error("expected in-use marker on region 0")
			}
			dev.Read(2048, buf)
			if types.IsMarker(buf) {
				t.Error("unexpected in-use marker on region 1")
			}
		})
	}
}

func TestInitPicksMarkedRegion(t *testing.T) {
	dev := flash.NewMemory(1024, 4, 0xFF)
	if err := dev.Write(2048, types.Marker(types.EraseOnes)); err != nil {
		t.Fatal(err)
	}

	s := reopen(t, dev)
	if st := s.Stats(); st.Region != 1 || st.ActiveBase != 2048 {
		t.Fatalf("expected region 1 active, got %+v", st)
	}

	s.Set(1, []byte("x"))
	if got := string(mustGet(t, reopen(t, dev), 1, 0)); got != "x" {
		t.Errorf("expected %q, got %q", "x", got)
	}
}

func TestInitRebuildsUsedSize(t *testing.T) {
	s, dev := newTestStore(t, 1024, 6, 0x00)

	s.Set(1, []byte("a"))
	s.Add(1, []byte("b"))
	want := s.Stats().UsedSize
	if want != 2048 {
		t.Fatalf("expected two page-aligned records, used %d", want)
	}

	if got := reopen(t, dev).Stats().UsedSize; got != want {
		t.Errorf("expected used size %d after reload, got %d", want, got)
	}
}

func TestInitSkipsIncompleteRecord(t *testing.T) {
	for _, p := range polarities {
		t.Run(p.name, func(t *testing.T) {
			s, dev := newTestStore(t, 1024, 4, p.erase)
			s.Set(1, []byte("kept"))

			// header and payload landed, the completing write did not
			h := s.pol.NewHeader(2, 4)
			s.pol.Mark(&h, types.FlagAddBegin)
			s.pol.Mark(&h, types.FlagPrimary)
			if err := dev.Write(1024, append(h.Encode(s.pol), "torn"...)); err != nil {
				t.Fatal(err)
			}

			r := reopen(t, dev)
			if st := r.Stats(); st.UsedSize != 2048 {
				t.Errorf("expected the begun record to keep its slot, used %d", st.UsedSize)
			}
			expectNotFound(t, r, 2, 0)
			if got := string(mustGet(t, r, 1, 0)); got != "kept" {
				t.Errorf("expected %q, got %q", "kept", got)
			}

			// next write compacts and drops the torn record
			if err := r.Set(3, []byte("after")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			expectNotFound(t, r, 2, 0)
			if got := string(mustGet(t, r, 3, 0)); got != "after" {
				t.Errorf("expected %q, got %q", "after", got)
			}
		})
	}
}

func TestInitCompactsDirtyFrontier(t *testing.T) {
	for _, p := range polarities {
		t.Run(p.name, func(t *testing.T) {
			s, dev := newTestStore(t, 1024, 4, p.erase)
			s.Set(1, []byte("kept"))

			// header write torn before the flags word: only the key landed
			if err := dev.Write(1024, []byte{0x5A, 0x5A}); err != nil {
				t.Fatal(err)
			}

			r := reopen(t, dev)
			if st := r.Stats(); st.Region != 1 {
				t.Errorf("expected compaction on load, got %+v", st)
			}
			if err := r.Set(2, []byte("new")); err != nil {
				t.Fatalf("Set over dirty frontier failed: %v", err)
			}
			if got := string(mustGet(t, r, 1, 0)); got != "kept" {
				t.Errorf("expected %q, got %q", "kept", got)
			}
			if got := string(mustGet(t, r, 2, 0)); got != "new" {
				t.Errorf("expected %q, got %q", "new", got)
			}
		})
	}
}

func TestCompactionCutBeforeCommit(t *testing.T) {
	mem := flash.NewMemory(1024, 4, 0xFF)
	dev := &cutDevice{
		Device: mem,
		cut: func(addr uint32, data []byte) bool {
			return addr == 2048 && types.IsMarker(data)
		},
	}

	s := reopen(t, dev)
	s.Set(1, []byte("one"))
	s.Add(2, []byte("two"))

	if _, err := s.Compact(); !errors.Is(err, errPowerLoss) {
		t.Fatalf("expected cut compaction, got %v", err)
	}

	r := reopen(t, mem)
	if st := r.Stats(); st.Region != 0 {
		t.Fatalf("expected the uncommitted region to be ignored, got %+v", st)
	}
	if got := string(mustGet(t, r, 1, 0)); got != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}
	if got := string(mustGet(t, r, 2, 0)); got != "two" {
		t.Errorf("expected %q, got %q", "two", got)
	}

	// the half-built region is erased by the next compaction
	if _, err := r.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if got := string(mustGet(t, r, 2, 0)); got != "two" {
		t.Errorf("expected %q, got %q", "two", got)
	}
}

func TestCompactionCutAfterCommit(t *testing.T) {
	mem := flash.NewMemory(1024, 4, 0x00)
	s := reopen(t, mem)
	s.Set(1, []byte("one"))
	s.Add(1, []byte("uno"))

	// commit the new region, then lose power before the old one is erased
	s.dev = &eraseCut{Device: mem, at: 0}
	if _, err := s.Compact(); !errors.Is(err, errPowerLoss) {
		t.Fatalf("expected cut erase, got %v", err)
	}

	buf := make([]byte, types.MarkerSize)
	mem.Read(0, buf)
	first := types.IsMarker(buf)
	mem.Read(2048, buf)
	second := types.IsMarker(buf)
	if !first || !second {
		t.Fatalf("expected both regions marked, got %v %v", first, second)
	}

	r := reopen(t, mem)
	if st := r.Stats(); st.Region != 0 {
		t.Errorf("expected region 0 kept, got %+v", st)
	}
	mem.Read(2048, buf)
	if types.IsMarker(buf) {
		t.Error("expected the duplicate region to be erased")
	}
	for i, want := range []string{"one", "uno"} {
		if got := string(mustGet(t, r, 1, i)); got != want {
			t.Errorf("index %d: expected %q, got %q", i, want, got)
		}
	}
}

// eraseCut fails erasing the page at address at.
type eraseCut struct {
	flash.Device
	at uint32
}

func (d *eraseCut) ErasePage(addr uint32) error {
	if addr == d.at {
		return errPowerLoss
	}
	return d.Device.ErasePage(addr)
}

func TestInitKeepsValuesOnBothPolarities(t *testing.T) {
	for _, p := range polarities {
		t.Run(p.name, func(t *testing.T) {
			s, dev := newTestStore(t, 512, 4, p.erase)
			for i := 0; i < 6; i++ {
				if err := s.Add(uint16(i%2), pattern(20, byte(i))); err != nil {
					t.Fatalf("Add %d failed: %v", i, err)
				}
			}

			r := reopen(t, dev)
			for i := 0; i < 6; i++ {
				got := mustGet(t, r, uint16(i%2), i/2)
				if !bytes.Equal(got, pattern(20, byte(i))) {
					t.Errorf("value %d mismatch after reload", i)
				}
			}
		})
	}
}
