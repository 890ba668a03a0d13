package portfs

// File I/O (§4.7): offset translation and the read/write path against the
// backing file.

// translate converts a file-local offset into a backing-file offset plus
// the number of contiguous bytes available from there to the end of the
// extent it falls in. It walks the extent list in order, direct then
// indirect, subtracting each extent's byte size until pos falls inside
// one.
func (m *Mount) translate(entry *FiletableEntry, pos uint64) (globalOffset int64, available uint64, err error) {
	remaining := pos
	for i := 0; i < int(entry.ExtentCount); i++ {
		ext := getExtent(entry, i)
		extBytes := uint64(ext.Length) * uint64(m.sb.BlockSize)
		if remaining < extBytes {
			globalOffset = int64(ext.StartBlock)*int64(m.sb.BlockSize) + int64(remaining)
			available = extBytes - remaining
			return globalOffset, available, nil
		}
		remaining -= extBytes
	}
	return 0, 0, newErr("translate", EFault)
}

// ensureIndirectLoaded loads the indirect extent page if entry has
// overflowed into it but it isn't resident yet (§4.7 Read).
func (m *Mount) ensureIndirectLoaded(entry *FiletableEntry) error {
	if int(entry.ExtentCount) <= DirectExtents {
		return nil
	}
	return m.ensureIndirectPage(entry)
}

// ReadFile reads up to len(p) bytes from entry starting at file-local
// offset pos, clamped to size_in_bytes (§4.7 Read).
func (m *Mount) ReadFile(entry *FiletableEntry, p []byte, pos uint64) (int, error) {
	if pos >= entry.SizeInBytes {
		return 0, nil
	}
	count := uint64(len(p))
	if pos+count > entry.SizeInBytes {
		count = entry.SizeInBytes - pos
	}
	if count == 0 {
		return 0, nil
	}

	if err := m.ensureIndirectLoaded(entry); err != nil {
		return 0, err
	}

	var total uint64
	for total < count {
		off, available, err := m.translate(entry, pos+total)
		if err != nil {
			return int(total), err
		}
		want := count - total
		if want > available {
			want = available
		}

		n, err := m.file.ReadAt(p[total:total+want], off)
		if err != nil {
			return int(total), wrapErr("ReadFile", EIO, err)
		}
		if uint64(n) != want {
			return int(total), newErr("ReadFile", EIO)
		}
		total += want
	}
	return int(total), nil
}

// WriteFile writes len(p) bytes to entry at file-local offset pos
// (or at entry.SizeInBytes if appendMode), growing the file's allocation
// first if necessary (§4.7 Write).
func (m *Mount) WriteFile(entry *FiletableEntry, p []byte, pos uint64, appendMode bool) (int, error) {
	if appendMode {
		pos = entry.SizeInBytes
	}

	count := uint64(len(p))
	if count == 0 {
		if pos > entry.SizeInBytes {
			entry.SizeInBytes = pos
		}
		return 0, nil
	}

	allocated := allocatedSize(entry, m.sb.BlockSize)
	needed := pos + count
	if needed > allocated {
		if err := m.allocate(entry, needed-allocated); err != nil {
			return 0, err
		}
	}

	if err := m.ensureIndirectLoaded(entry); err != nil {
		return 0, err
	}

	minOffset := int64(m.sb.DataStart) * int64(m.sb.BlockSize)

	var total uint64
	for total < count {
		off, available, err := m.translate(entry, pos+total)
		if err != nil {
			return int(total), err
		}
		if off < minOffset {
			break
		}
		want := count - total
		if want > available {
			want = available
		}

		n, err := m.file.WriteAt(p[total:total+want], off)
		if err != nil {
			return int(total), wrapErr("WriteFile", EIO, err)
		}
		if uint64(n) != want {
			return int(total), newErr("WriteFile", EIO)
		}
		total += want
	}

	if total != count {
		return int(total), newErr("WriteFile", EIO)
	}

	if pos+total > entry.SizeInBytes {
		entry.SizeInBytes = pos + total
	}
	return int(total), nil
}

// IterateDir produces "." and ".." followed by dir's stored entries
// (§4.7 "Directory iterate").
func (m *Mount) IterateDir(dir *FiletableEntry, selfIno, parentIno uint32) ([]DirListEntry, error) {
	entries, err := m.dirIterate(dir)
	if err != nil {
		return nil, err
	}
	out := make([]DirListEntry, 0, len(entries)+2)
	out = append(out, DirListEntry{Name: ".", Ino: selfIno})
	out = append(out, DirListEntry{Name: "..", Ino: parentIno})
	out = append(out, entries...)
	return out, nil
}
