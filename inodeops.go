package portfs

// Inode operations (§4.8): create, mkdir, lookup, unlink, rmdir, setattr.
// Each of these is the public API boundary the FUSE adapter calls through,
// so each takes the mount's coarse lock itself (§5); nothing below this
// layer (directory.go, extent.go, filetable.go, fileio.go) locks on its
// own.

// validateName enforces the nonempty, <=MaxNameLength constraint shared by
// every operation that takes a child name (§4.8 "Pre" clauses).
func validateName(name string) error {
	if len(name) == 0 {
		return newErr("validateName", EInvalid)
	}
	if len(name) > MaxNameLength {
		return newErr("validateName", ENameTooLong)
	}
	return nil
}

// installChild wraps a freshly populated filetable entry in a resident
// Inode and registers it on the mount.
func (m *Mount) installChild(entry *FiletableEntry, nlink uint32) *Inode {
	ino := &Inode{mnt: m, entry: entry, Ino: entry.Ino, NLink: nlink}
	m.resident[entry.Ino] = ino
	return ino
}

// Create implements create(parent_inode, name, mode) (§4.8): allocate a
// fresh filetable entry for a regular file and link it into parent.
func (m *Mount) Create(parent *Inode, name string, mode uint16) (*Inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !parent.entry.IsDir() {
		return nil, newErr("Create", ENotDir)
	}
	if _, ok := m.dirFind(parent.entry, name); ok {
		return nil, newErr("Create", EExist)
	}

	slot, ok := m.findFreeEntry()
	if !ok {
		return nil, newErr("Create", ENoSpace)
	}

	ino := m.allocIno()
	entry := m.filetable[slot]
	entry.Ino = ino
	entry.Mode = (mode &^ S_IFMT) | S_IFREG
	entry.SizeInBytes = 0
	entry.ExtentCount = 0
	entry.ExtentsBlock = 0
	entry.DirectExtents = [DirectExtents]Extent{}
	entry.IndirectExtents = nil

	if err := m.dirAdd(parent.entry, name, ino); err != nil {
		*entry = FiletableEntry{}
		return nil, err
	}

	return m.installChild(entry, 1), nil
}

// Mkdir implements mkdir(parent_inode, name, mode) (§4.8): as Create, but
// the new entry is a directory with no block allocated yet and nlink=2
// (itself plus the slot it occupies in parent).
func (m *Mount) Mkdir(parent *Inode, name string, mode uint16) (*Inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !parent.entry.IsDir() {
		return nil, newErr("Mkdir", ENotDir)
	}
	if _, ok := m.dirFind(parent.entry, name); ok {
		return nil, newErr("Mkdir", EExist)
	}

	slot, ok := m.findFreeEntry()
	if !ok {
		return nil, newErr("Mkdir", ENoSpace)
	}

	ino := m.allocIno()
	entry := m.filetable[slot]
	entry.Ino = ino
	entry.Mode = (mode &^ S_IFMT) | S_IFDIR
	entry.SizeInBytes = 0
	entry.DirBlock = 0
	entry.ParentDirIno = parent.entry.Ino

	if err := m.dirAdd(parent.entry, name, ino); err != nil {
		*entry = FiletableEntry{}
		return nil, err
	}

	return m.installChild(entry, 2), nil
}

// Lookup implements lookup(parent_inode, name) (§4.8): resolve name inside
// parent and return its resident inode, reusing one already installed if
// present.
func (m *Mount) Lookup(parent *Inode, name string) (*Inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !parent.entry.IsDir() {
		return nil, newErr("Lookup", ENotDir)
	}

	de, ok := m.dirFind(parent.entry, name)
	if !ok {
		return nil, newErr("Lookup", ENotFound)
	}

	if resident, ok := m.resident[de.InodeNumber]; ok {
		return resident, nil
	}

	entry, _ := m.findByIno(de.InodeNumber)
	if entry == nil {
		return nil, newErr("Lookup", ENotFound)
	}

	nlink := uint32(1)
	if entry.IsDir() {
		nlink = 2
	}
	return m.installChild(entry, nlink), nil
}

// freeExtents releases every block entry currently owns: its direct and
// indirect extents, and the indirect page itself if one was allocated.
// Shared by Unlink and a full truncate-to-zero in Setattr.
func (m *Mount) freeExtents(entry *FiletableEntry) error {
	if err := m.ensureIndirectLoaded(entry); err != nil {
		return err
	}
	for i := 0; i < int(entry.ExtentCount); i++ {
		ext := getExtent(entry, i)
		if err := m.bitmap.ClearRange(ext.StartBlock, ext.Length); err != nil {
			return err
		}
	}
	if entry.ExtentsBlock != 0 {
		if err := m.bitmap.Clear(entry.ExtentsBlock); err != nil {
			return err
		}
	}
	entry.ExtentCount = 0
	entry.ExtentsBlock = 0
	entry.DirectExtents = [DirectExtents]Extent{}
	entry.IndirectExtents = nil
	return nil
}

// Unlink implements unlink(parent_inode, name) (§4.8): free the target
// file's extents, zero its filetable record, and remove it from parent.
func (m *Mount) Unlink(parent *Inode, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !parent.entry.IsDir() {
		return newErr("Unlink", ENotDir)
	}

	de, ok := m.dirFind(parent.entry, name)
	if !ok {
		return newErr("Unlink", ENotFound)
	}
	entry, _ := m.findByIno(de.InodeNumber)
	if entry == nil {
		return newErr("Unlink", ENotFound)
	}
	if entry.IsDir() {
		return newErr("Unlink", EIsDir)
	}

	if err := m.freeExtents(entry); err != nil {
		return err
	}
	*entry = FiletableEntry{}

	m.dirRemove(parent.entry, name)

	if resident, ok := m.resident[de.InodeNumber]; ok && resident.NLink > 0 {
		resident.NLink--
	}
	return nil
}

// Rmdir implements rmdir(parent_inode, name) (§4.8): requires the target
// directory to be empty, frees its block if one was allocated, and
// removes it from parent.
func (m *Mount) Rmdir(parent *Inode, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !parent.entry.IsDir() {
		return newErr("Rmdir", ENotDir)
	}

	de, ok := m.dirFind(parent.entry, name)
	if !ok {
		return newErr("Rmdir", ENotFound)
	}
	entry, _ := m.findByIno(de.InodeNumber)
	if entry == nil {
		return newErr("Rmdir", ENotFound)
	}
	if !entry.IsDir() {
		return newErr("Rmdir", ENotDir)
	}
	if !m.dirIsEmpty(entry) {
		return newErr("Rmdir", ENotEmpty)
	}

	if entry.DirBlock != 0 {
		if err := m.bitmap.Clear(entry.DirBlock); err != nil {
			return err
		}
	}
	entry.DirEntries = nil
	*entry = FiletableEntry{}

	m.dirRemove(parent.entry, name)

	if resident, ok := m.resident[de.InodeNumber]; ok {
		resident.NLink = 0
	}
	return nil
}

// Setattr implements setattr(size) (§4.8): truncate or extend a file's
// size. Size is only updated in the filetable entry after the extent
// edit it requires has fully succeeded (§7).
//
// Shrinking walks extents tail-first with a decreasing index; freeing an
// extent whose full length no longer fits within the new size. This is
// the corrected direction: the reference implementation's analogous loop
// advances with ++i and ends up freeing the wrong end of the list.
func (m *Mount) Setattr(inode *Inode, newSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := inode.entry
	if entry.IsDir() {
		return newErr("Setattr", EIsDir)
	}

	blockSize := uint64(m.sb.BlockSize)

	switch {
	case newSize < entry.SizeInBytes:
		if newSize == 0 {
			if err := m.ensureIndirectLoaded(entry); err != nil {
				return err
			}
			if err := m.freeExtents(entry); err != nil {
				return err
			}
			entry.SizeInBytes = 0
			return nil
		}

		if err := m.ensureIndirectLoaded(entry); err != nil {
			return err
		}

		allocated := allocatedSize(entry, uint32(blockSize))
		needed := (newSize + blockSize - 1) / blockSize * blockSize
		toRemove := int64(allocated-needed) / int64(blockSize)

		for i := int(entry.ExtentCount) - 1; i >= 0 && toRemove > 0; i-- {
			ext := getExtent(entry, i)
			if int64(ext.Length) > toRemove {
				break
			}
			if err := m.bitmap.ClearRange(ext.StartBlock, ext.Length); err != nil {
				return err
			}
			setExtent(entry, i, Extent{})
			entry.ExtentCount--
			toRemove -= int64(ext.Length)
		}

		if int(entry.ExtentCount) <= DirectExtents && entry.ExtentsBlock != 0 {
			if err := m.bitmap.Clear(entry.ExtentsBlock); err != nil {
				return err
			}
			entry.ExtentsBlock = 0
			entry.IndirectExtents = nil
		}

		entry.SizeInBytes = newSize

	case newSize > entry.SizeInBytes:
		allocated := allocatedSize(entry, uint32(blockSize))
		if newSize > allocated {
			if err := m.allocate(entry, newSize-allocated); err != nil {
				return err
			}
		}
		entry.SizeInBytes = newSize
	}

	return nil
}

// EvictInode implements evict_inode (§4.9 "evict_inode"): drop the mount's
// resident pointer for ino. The underlying filetable entry, if still
// live, is untouched.
func (m *Mount) EvictInode(ino uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resident, ino)
}
