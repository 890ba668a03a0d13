package portfs

// Directory store (§4.6): each directory's on-disk block holds a fixed
// array of name/inode slots. The in-memory array is loaded lazily on
// first access and kept resident for the entry's lifetime (§5 "Ownership
// of per-entry auxiliary buffers").

// encodeDirBlock serializes a directory's slot array into one block-sized
// buffer.
func encodeDirBlock(entries []DirEntry, blockSize uint32) []byte {
	buf := make([]byte, blockSize)
	off := 0
	for _, e := range entries {
		if off+DirEntrySize > len(buf) {
			break
		}
		encodeDirEntry(e, buf[off:off+DirEntrySize])
		off += DirEntrySize
	}
	return buf
}

// decodeDirBlock parses a block-sized buffer into its fixed slot array.
func decodeDirBlock(buf []byte) []DirEntry {
	n := len(buf) / DirEntrySize
	out := make([]DirEntry, n)
	for i := 0; i < n; i++ {
		out[i] = decodeDirEntry(buf[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	return out
}

// loadDir ensures dir.DirEntries is populated, allocating a fresh block if
// the directory is empty/unallocated (dir_block == 0) or reading the
// existing one otherwise (§4.6 load).
func (m *Mount) loadDir(dir *FiletableEntry) error {
	if dir.DirEntries != nil {
		return nil
	}
	if !dir.IsDir() {
		return newErr("loadDir", ENotDir)
	}

	n := m.sb.MaxDirEntries()

	if dir.DirBlock == 0 {
		block, err := m.allocBlock()
		if err != nil {
			return err
		}
		dir.DirBlock = block
		dir.DirEntries = make([]DirEntry, n)
		return nil
	}

	buf := make([]byte, m.sb.BlockSize)
	off := int64(dir.DirBlock) * int64(m.sb.BlockSize)
	if _, err := m.file.ReadAt(buf, off); err != nil {
		return wrapErr("loadDir", EIO, err)
	}
	dir.DirEntries = decodeDirBlock(buf)
	return nil
}

// dirAdd installs entry into the first free slot of parent's directory
// (§4.6 add). Per the spec's Open Question resolution, overflow is
// reported as ENoSpace rather than silently dropped.
func (m *Mount) dirAdd(parent *FiletableEntry, name string, ino uint32) error {
	if err := m.loadDir(parent); err != nil {
		return err
	}
	for i, slot := range parent.DirEntries {
		if slot.IsFree() {
			parent.DirEntries[i] = DirEntry{Name: name, InodeNumber: ino}
			return nil
		}
	}
	return newErr("dirAdd", ENoSpace)
}

// dirFind does an exact byte-equal linear search by name (§4.6 find).
func (m *Mount) dirFind(parent *FiletableEntry, name string) (DirEntry, bool) {
	if err := m.loadDir(parent); err != nil {
		return DirEntry{}, false
	}
	for _, slot := range parent.DirEntries {
		if !slot.IsFree() && slot.Name == name {
			return slot, true
		}
	}
	return DirEntry{}, false
}

// dirRemove zeroes the first slot matching name (§4.6 remove).
func (m *Mount) dirRemove(parent *FiletableEntry, name string) bool {
	if err := m.loadDir(parent); err != nil {
		return false
	}
	for i, slot := range parent.DirEntries {
		if !slot.IsFree() && slot.Name == name {
			parent.DirEntries[i] = DirEntry{}
			return true
		}
	}
	return false
}

// dirIsEmpty reports whether dir has no live entries (§4.6 is_empty).
func (m *Mount) dirIsEmpty(dir *FiletableEntry) bool {
	if dir.DirBlock == 0 {
		return true
	}
	if err := m.loadDir(dir); err != nil {
		return true
	}
	for _, slot := range dir.DirEntries {
		if !slot.IsFree() {
			return false
		}
	}
	return true
}

// DirListEntry is one entry produced by dirIterate, including the
// synthesized "." and ".." the real caller-facing iterator prepends.
type DirListEntry struct {
	Name string
	Ino  uint32
}

// dirIterate returns every live slot of dir, in array order, skipping
// zeroed slots (§4.6 iterate). Callers are responsible for synthesizing
// "." and ".." ahead of this list; the stable cursor position for a real
// entry at result index k is k+2 (§4.6).
func (m *Mount) dirIterate(dir *FiletableEntry) ([]DirListEntry, error) {
	if dir.DirBlock == 0 {
		return nil, nil
	}
	if err := m.loadDir(dir); err != nil {
		return nil, err
	}
	var out []DirListEntry
	for _, slot := range dir.DirEntries {
		if slot.IsFree() {
			continue
		}
		out = append(out, DirListEntry{Name: slot.Name, Ino: slot.InodeNumber})
	}
	return out, nil
}
