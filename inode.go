package portfs

import (
	"io/fs"
	"sync/atomic"
)

// Inode is the VFS-facing resident handle for a live filetable entry. A
// Mount keeps at most one Inode per live ino in its resident map (§3
// "Lifecycle of an entry"); EvictInode drops the map entry without
// touching the underlying filetable record.
type Inode struct {
	// refcnt leads the struct for 64-bit alignment on 32-bit platforms,
	// same layout concern the teacher's squashfs.Inode calls out.
	refcnt uint64

	mnt   *Mount
	entry *FiletableEntry

	Ino   uint32
	NLink uint32 // host-VFS-facing only; PortFS has no hard links (Non-goals)
}

// Mode returns the inode's POSIX file mode, type bits included.
func (i *Inode) Mode() fs.FileMode {
	return UnixToMode(uint32(i.entry.Mode))
}

// IsDir reports whether this inode is a directory.
func (i *Inode) IsDir() bool { return i.entry.IsDir() }

// Size returns the inode's current size_in_bytes.
func (i *Inode) Size() uint64 { return i.entry.SizeInBytes }

// RawMode returns the inode's raw st_mode, type bits and permission bits
// together, as stored in the filetable entry.
func (i *Inode) RawMode() uint32 { return uint32(i.entry.Mode) }

// AddRef increments the reference count kept for the FUSE lookup/forget
// protocol and returns the new value.
func (i *Inode) AddRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, count)
}

// DelRef decrements the reference count and returns the new value.
func (i *Inode) DelRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, ^(count - 1))
}
