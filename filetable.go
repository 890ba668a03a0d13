package portfs

// Filetable operations (§4.5): the fixed-capacity table of filetable
// entries lives on *Mount as m.filetable, indexed by slot. These helpers
// are the only code that walks that slice directly; everything else goes
// through findFreeEntry/findByIno.

// findFreeEntry returns the slot index of the first entry with Mode == 0,
// and ok=false if the table is full.
func (m *Mount) findFreeEntry() (int, bool) {
	for i, e := range m.filetable {
		if e.IsFree() {
			return i, true
		}
	}
	return 0, false
}

// findByIno scans the filetable for the entry whose Ino matches, returning
// its slot index too since callers that mutate need it. ino is the
// canonical on-disk identifier per §4.5.
func (m *Mount) findByIno(ino uint32) (*FiletableEntry, int) {
	for i, e := range m.filetable {
		if !e.IsFree() && e.Ino == ino {
			return e, i
		}
	}
	return nil, -1
}

// allocIno mints a fresh inode number not colliding with any currently
// resident or on-disk inode (§4.5). The root always keeps ino==1; every
// later entry gets the running counter established at mount time, bumped
// past any still-live value.
func (m *Mount) allocIno() uint32 {
	for {
		ino := m.nextIno
		m.nextIno++
		if entry, _ := m.findByIno(ino); entry == nil {
			if _, resident := m.resident[ino]; !resident {
				return ino
			}
		}
	}
}
