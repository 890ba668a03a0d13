package portfs

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// syncBufferSize is the streaming buffer size used to flush the filetable
// and bitmap regions during sync (§4.9), matching the original kernel
// module's WRITE_BUFFER_SIZE of 1 MiB.
const syncBufferSize = 1 << 20

// Mount is the mount context of §4.9/§9 "Mount context": the in-memory
// superblock, filetable, bitmap, and backing-file handle held for the life
// of a mount. There is exactly one coarse reader-writer lock (§5). The
// inode operations, EvictInode and Unmount take it themselves, as do the
// FUSE adapter's Read and Write; ReadFile, WriteFile, IterateDir and Sync
// do not take it and leave that to their caller.
type Mount struct {
	mu sync.RWMutex

	path string
	file *os.File

	sb      *Superblock
	bitmap  *Bitmap
	// filetable is indexed by filetable slot, not by ino; slot i lives at
	// byte offset i*FiletableEntrySize within the filetable region.
	filetable []*FiletableEntry

	root *Inode
	// resident holds every Inode a caller currently references, keyed by
	// ino. Eviction (EvictInode) removes the map entry but never touches
	// the filetable entry itself (§3 "Lifecycle of an entry").
	resident map[uint32]*Inode

	nextIno uint32

	log *logrus.Entry
	id  uuid.UUID
}

// Option configures a Mount at mount time, mirroring the teacher's
// Option func(sb *Superblock) error pattern (options.go) generalized to
// the mount context.
type Option func(*Mount) error

// WithLogger overrides the default logrus logger (useful for tests that
// want to assert on emitted fields or silence output).
func WithLogger(l *logrus.Logger) Option {
	return func(m *Mount) error {
		m.log = l.WithField("mount_id", m.id)
		return nil
	}
}

// Mount opens the backing file at path, parses its layout, and installs
// the root directory (§4.9 Mount, steps 1-5).
func Mount(path string, opts ...Option) (*Mount, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapErr("Mount", EIO, err)
	}

	m := &Mount{
		path:     path,
		file:     f,
		resident: make(map[uint32]*Inode),
		id:       uuid.New(),
	}
	m.log = logrus.StandardLogger().WithField("mount_id", m.id)

	for _, opt := range opts {
		if err := opt(m); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := m.load(); err != nil {
		f.Close()
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"path":         path,
		"total_blocks": m.sb.TotalBlocks,
		"block_size":   m.sb.BlockSize,
	}).Info("portfs: mounted")

	return m, nil
}

// load implements §4.9 Mount steps 2-5.
func (m *Mount) load() error {
	head := make([]byte, SuperblockSize)
	if _, err := m.file.ReadAt(head, 0); err != nil {
		return wrapErr("Mount.load", EIO, err)
	}
	sb, err := decodeSuperblock(head)
	if err != nil {
		return err
	}
	if err := sb.Validate(); err != nil {
		return err
	}
	m.sb = sb

	if err := m.loadFiletable(); err != nil {
		return err
	}
	if err := m.loadBitmap(); err != nil {
		return err
	}

	if m.nextIno < 2 {
		m.nextIno = 2 // ino 1 is always the root
	}
	return m.installRoot()
}

func (m *Mount) loadFiletable() error {
	size := int64(m.sb.FiletableSize) * int64(m.sb.BlockSize)
	buf := make([]byte, size)
	if _, err := m.file.ReadAt(buf, int64(m.sb.FiletableStart)*int64(m.sb.BlockSize)); err != nil {
		return wrapErr("Mount.loadFiletable", EIO, err)
	}

	m.filetable = make([]*FiletableEntry, m.sb.MaxFileCount)
	for i := uint32(0); i < m.sb.MaxFileCount; i++ {
		off := int64(i) * FiletableEntrySize
		entry, err := decodeFiletableEntry(buf[off : off+FiletableEntrySize])
		if err != nil {
			return err
		}
		m.filetable[i] = entry
		if entry.Ino >= m.nextIno {
			m.nextIno = entry.Ino + 1
		}
	}
	return nil
}

func (m *Mount) loadBitmap() error {
	size := int64(m.sb.BlockBitmapSize) * int64(m.sb.BlockSize)
	buf := make([]byte, size)
	if _, err := m.file.ReadAt(buf, int64(m.sb.BlockBitmapStart)*int64(m.sb.BlockSize)); err != nil {
		return wrapErr("Mount.loadBitmap", EIO, err)
	}
	m.bitmap = LoadBitmap(buf)
	return nil
}

// installRoot locates the ino==1 filetable entry, seizing a free slot and
// initializing it as a directory if none exists yet.
func (m *Mount) installRoot() error {
	entry, _ := m.findByIno(1)
	if entry == nil {
		slot, ok := m.findFreeEntry()
		if !ok {
			return newErr("Mount.installRoot", ENoSpace)
		}
		entry = m.filetable[slot]
		entry.Ino = 1
		entry.Mode = S_IFDIR | 0755
		entry.ParentDirIno = 1
		entry.DirBlock = 0
	}

	m.root = &Inode{mnt: m, entry: entry, Ino: 1}
	m.resident[1] = m.root
	return nil
}

// Root returns the mounted filesystem's root directory inode.
func (m *Mount) Root() *Inode { return m.root }

// Superblock returns a copy of the mount's current superblock fields.
func (m *Mount) Superblock() Superblock { return *m.sb }

// Sync writes back the superblock, filetable, and bitmap, in that order,
// then fsyncs the backing file (§4.9 Sync). It does not lock internally;
// callers (Unmount) are expected to hold the coarse lock exclusive,
// matching §5.
func (m *Mount) Sync() error {
	m.sb.LastWriteTime = uint64(now().Unix())

	if _, err := m.file.WriteAt(encodeSuperblock(m.sb), 0); err != nil {
		return wrapErr("Mount.Sync", EIO, err)
	}

	if err := m.syncFiletable(); err != nil {
		return err
	}
	if err := m.syncBitmap(); err != nil {
		return err
	}

	if err := m.file.Sync(); err != nil {
		return wrapErr("Mount.Sync", EIO, err)
	}

	m.log.Debug("portfs: sync complete")
	return nil
}

// syncFiletable streams the filetable out through a syncBufferSize buffer,
// and flushes any resident indirect-extent or directory-entry pages along
// the way (§4.9).
func (m *Mount) syncFiletable() error {
	entriesPerBuf := syncBufferSize / FiletableEntrySize
	if entriesPerBuf == 0 {
		entriesPerBuf = 1
	}

	base := int64(m.sb.FiletableStart) * int64(m.sb.BlockSize)
	for start := 0; start < len(m.filetable); start += entriesPerBuf {
		end := start + entriesPerBuf
		if end > len(m.filetable) {
			end = len(m.filetable)
		}

		buf := make([]byte, 0, (end-start)*FiletableEntrySize)
		for i := start; i < end; i++ {
			entry := m.filetable[i]
			buf = append(buf, encodeFiletableEntry(entry)...)

			if !entry.IsFree() && !entry.IsDir() && entry.ExtentsBlock != 0 && entry.IndirectExtents != nil {
				page := encodeIndirectPage(entry.IndirectExtents, m.sb.BlockSize)
				off := int64(entry.ExtentsBlock) * int64(m.sb.BlockSize)
				if _, err := m.file.WriteAt(page, off); err != nil {
					return wrapErr("Mount.syncFiletable", EIO, err)
				}
			}
			if !entry.IsFree() && entry.IsDir() && entry.DirBlock != 0 && entry.DirEntries != nil {
				block := encodeDirBlock(entry.DirEntries, m.sb.BlockSize)
				off := int64(entry.DirBlock) * int64(m.sb.BlockSize)
				if _, err := m.file.WriteAt(block, off); err != nil {
					return wrapErr("Mount.syncFiletable", EIO, err)
				}
			}
		}

		off := base + int64(start)*FiletableEntrySize
		n, err := m.file.WriteAt(buf, off)
		if err != nil {
			return wrapErr("Mount.syncFiletable", EIO, err)
		}
		if n != len(buf) {
			return newErr("Mount.syncFiletable", EIO)
		}
	}
	return nil
}

func (m *Mount) syncBitmap() error {
	if !m.bitmap.Dirty() {
		return nil
	}
	data := m.bitmap.Bytes()
	base := int64(m.sb.BlockBitmapStart) * int64(m.sb.BlockSize)

	for off := 0; off < len(data); off += syncBufferSize {
		end := off + syncBufferSize
		if end > len(data) {
			end = len(data)
		}
		n, err := m.file.WriteAt(data[off:end], base+int64(off))
		if err != nil {
			return wrapErr("Mount.syncBitmap", EIO, err)
		}
		if n != end-off {
			return newErr("Mount.syncBitmap", EIO)
		}
	}
	m.bitmap.ClearDirty()
	return nil
}

// Unmount syncs, releases the in-memory filetable and bitmap (and any
// per-entry auxiliary buffers), and closes the backing file (§4.9
// Unmount).
func (m *Mount) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.Sync(); err != nil {
		return err
	}

	for _, entry := range m.filetable {
		entry.IndirectExtents = nil
		entry.DirEntries = nil
	}
	m.filetable = nil
	m.bitmap = nil
	m.resident = nil

	if err := m.file.Close(); err != nil {
		return wrapErr("Mount.Unmount", EIO, err)
	}
	m.log.Info("portfs: unmounted")
	return nil
}
