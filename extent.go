package portfs

// Extent allocator (§4.4): best-fit allocation of file extents, direct
// then indirect, backed by the per-request free-extent index.

// blockAllocScale/blockAllocMultiplier implement the 1.5x deliberate
// over-allocation of §4.4 step 1 (1500/1000 = 1.5, integer scale so the
// arithmetic matches a systems-language fixed-point computation exactly).
const (
	blockAllocScale      = 1000
	blockAllocMultiplier = 1500
)

// allocBlock finds and claims a single free block, searching linearly
// from data_start (§4.4 "Indirect-page initialization", §4.6 "allocate a
// free block via the bitmap").
func (m *Mount) allocBlock() (uint32, error) {
	i := m.bitmap.FindFirstClear(m.sb.DataStart, m.sb.TotalBlocks)
	if i == -1 {
		return 0, newErr("allocBlock", ENoSpace)
	}
	if err := m.bitmap.Set(uint32(i)); err != nil {
		return 0, err
	}
	return uint32(i), nil
}

// ensureIndirectPage makes entry.IndirectExtents resident, allocating a
// fresh zeroed block if entry.ExtentsBlock is unset, or reading the
// existing page from the backing file otherwise (§4.4 "Indirect-page
// initialization").
func (m *Mount) ensureIndirectPage(entry *FiletableEntry) error {
	if entry.IndirectExtents != nil {
		return nil
	}

	if entry.ExtentsBlock == 0 {
		block, err := m.allocBlock()
		if err != nil {
			return err
		}
		entry.ExtentsBlock = block
		entry.IndirectExtents = make([]Extent, int(m.sb.BlockSize)/ExtentSize)
		return nil
	}

	buf := make([]byte, m.sb.BlockSize)
	off := int64(entry.ExtentsBlock) * int64(m.sb.BlockSize)
	if _, err := m.file.ReadAt(buf, off); err != nil {
		return wrapErr("ensureIndirectPage", EIO, err)
	}
	entry.IndirectExtents = decodeIndirectPage(buf)
	return nil
}

// getExtent returns the i'th extent owned by entry (0-indexed across
// direct extents then the indirect page), assuming i < entry.ExtentCount
// and the indirect page is resident if needed.
func getExtent(entry *FiletableEntry, i int) Extent {
	if i < DirectExtents {
		return entry.DirectExtents[i]
	}
	return entry.IndirectExtents[i-DirectExtents]
}

// setExtent stores the i'th extent owned by entry, growing into the
// indirect page as needed.
func setExtent(entry *FiletableEntry, i int, ext Extent) {
	if i < DirectExtents {
		entry.DirectExtents[i] = ext
		return
	}
	entry.IndirectExtents[i-DirectExtents] = ext
}

// allocatedSize returns the sum of entry's extent lengths, in bytes
// (§4.4 "Allocated-size query").
func allocatedSize(entry *FiletableEntry, blockSize uint32) uint64 {
	var blocks uint64
	for i := 0; i < int(entry.ExtentCount); i++ {
		blocks += uint64(getExtent(entry, i).Length)
	}
	return blocks * uint64(blockSize)
}

// allocate satisfies an allocation request of bytesToAllocate additional
// bytes for entry (§4.4 Request/Policy). On partial success it leaves
// whatever extents it already claimed in place before returning
// ENoSpace, per §7's propagation policy.
func (m *Mount) allocate(entry *FiletableEntry, bytesToAllocate uint64) error {
	if bytesToAllocate == 0 {
		return newErr("allocate", EInvalid)
	}

	blocksNeeded := (bytesToAllocate + uint64(m.sb.BlockSize) - 1) / uint64(m.sb.BlockSize)
	blocksNeeded = blocksNeeded * blockAllocMultiplier / blockAllocScale
	if blocksNeeded == 0 {
		blocksNeeded = 1
	}

	if int(entry.ExtentCount) >= DirectExtents {
		if err := m.ensureIndirectPage(entry); err != nil {
			return err
		}
	}

	idx := BuildFreeExtentIndex(m.bitmap, m.sb.DataStart, m.sb.TotalBlocks)
	defer idx.Destroy()

	maxExtents := m.sb.MaxExtentsPerFile()
	remaining := int64(blocksNeeded)
	var allocErr error

	idx.Ascend(func(start, length uint32) bool {
		if int(entry.ExtentCount) >= maxExtents {
			return false
		}
		if err := m.bitmap.SetRange(start, length); err != nil {
			allocErr = err
			return false
		}
		if int(entry.ExtentCount) >= DirectExtents && entry.IndirectExtents == nil {
			if err := m.ensureIndirectPage(entry); err != nil {
				allocErr = err
				return false
			}
		}
		setExtent(entry, int(entry.ExtentCount), Extent{StartBlock: start, Length: length})
		entry.ExtentCount++
		remaining -= int64(length)
		return remaining > 0
	})

	if allocErr != nil {
		return allocErr
	}
	if remaining > 0 {
		return newErr("allocate", ENoSpace)
	}
	return nil
}
