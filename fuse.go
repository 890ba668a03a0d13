//go:build fuse

package portfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FUSE adapter (§6 "VFS-facing operations"). Built only with the fuse tag
// since it's the only file pulling in github.com/hanwen/go-fuse/v2/fs;
// everything else in this package is usable as a plain library without a
// FUSE runtime in the picture.

// errnoOf maps an Errno (§7) onto the POSIX negative error code the FUSE
// kernel protocol expects.
func errnoOf(err error) syscall.Errno {
	switch KindOf(err) {
	case 0:
		return 0
	case EInvalid:
		return syscall.EINVAL
	case ENotFound:
		return syscall.ENOENT
	case EExist:
		return syscall.EEXIST
	case ENotDir:
		return syscall.ENOTDIR
	case EIsDir:
		return syscall.EISDIR
	case ENotEmpty:
		return syscall.ENOTEMPTY
	case ENameTooLong:
		return syscall.ENAMETOOLONG
	case ENoSpace:
		return syscall.ENOSPC
	case EFault:
		return syscall.EFAULT
	case EOOM:
		return syscall.ENOMEM
	default:
		return syscall.EIO
	}
}

// fuseNode is the go-fuse InodeEmbedder wrapping one resident *Inode. The
// node tree's own fs.Inode bookkeeping (NewInode, the kernel inode cache)
// lives alongside, not instead of, the mount's own resident map: Mount
// still owns the filetable entry and its lifetime (§3, §4.9).
type fuseNode struct {
	fs.Inode
	mnt *Mount
	ino *Inode
}

var (
	_ fs.NodeLookuper  = (*fuseNode)(nil)
	_ fs.NodeGetattrer = (*fuseNode)(nil)
	_ fs.NodeSetattrer = (*fuseNode)(nil)
	_ fs.NodeCreater   = (*fuseNode)(nil)
	_ fs.NodeMkdirer   = (*fuseNode)(nil)
	_ fs.NodeUnlinker  = (*fuseNode)(nil)
	_ fs.NodeRmdirer   = (*fuseNode)(nil)
	_ fs.NodeReaddirer = (*fuseNode)(nil)
	_ fs.NodeOpener    = (*fuseNode)(nil)
	_ fs.NodeReader    = (*fuseNode)(nil)
	_ fs.NodeWriter    = (*fuseNode)(nil)
)

// Root builds the fs.InodeEmbedder a go-fuse server mounts at its root,
// wrapping m.Root() (§4.9 "Mount", step 5 "install the root directory").
func Root(m *Mount) fs.InodeEmbedder {
	return &fuseNode{mnt: m, ino: m.Root()}
}

func stableAttr(ino *Inode) fs.StableAttr {
	if ino.IsDir() {
		return fs.StableAttr{Mode: fuse.S_IFDIR, Ino: uint64(ino.Ino)}
	}
	return fs.StableAttr{Mode: fuse.S_IFREG, Ino: uint64(ino.Ino)}
}

func (n *fuseNode) child(child *Inode) *fs.Inode {
	return n.NewInode(context.Background(), &fuseNode{mnt: n.mnt, ino: child}, stableAttr(child))
}

func (n *fuseNode) fillAttr(out *fuse.Attr) {
	out.Ino = uint64(n.ino.Ino)
	out.Size = n.ino.Size()
	out.Mode = n.ino.RawMode()
	out.Blocks = (out.Size + uint64(n.mnt.sb.BlockSize) - 1) / uint64(n.mnt.sb.BlockSize)
	out.Nlink = n.ino.NLink
	if out.Nlink == 0 {
		out.Nlink = 1
	}
}

// Getattr implements getattr (§4.8, §6).
func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(&out.Attr)
	return 0
}

// Lookup implements lookup(parent_inode, name) (§4.8, §6).
func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.mnt.Lookup(n.ino, name)
	if err != nil {
		return nil, errnoOf(err)
	}
	out.NodeId = uint64(child.Ino)
	out.Attr.Ino = uint64(child.Ino)
	return n.child(child), 0
}

// Create implements create(parent_inode, name, mode) (§4.8, §6).
func (n *fuseNode) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child, err := n.mnt.Create(n.ino, name, uint16(mode))
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	out.NodeId = uint64(child.Ino)
	return n.child(child), nil, 0, 0
}

// Mkdir implements mkdir(parent_inode, name, mode) (§4.8, §6).
func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.mnt.Mkdir(n.ino, name, uint16(mode))
	if err != nil {
		return nil, errnoOf(err)
	}
	out.NodeId = uint64(child.Ino)
	return n.child(child), 0
}

// Unlink implements unlink(parent_inode, name) (§4.8, §6).
func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.mnt.Unlink(n.ino, name))
}

// Rmdir implements rmdir(parent_inode, name) (§4.8, §6).
func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.mnt.Rmdir(n.ino, name))
}

// Setattr implements setattr(size) (§4.8, §6), the only attribute this
// filesystem lets a caller change.
func (n *fuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.mnt.Setattr(n.ino, size); err != nil {
			return errnoOf(err)
		}
	}
	n.fillAttr(&out.Attr)
	return 0
}

// Open implements open (§6); PortFS keeps no per-handle state since reads
// and writes go straight through Mount's coarse lock. Directories are
// opened through fs.NodeOpendirer instead, which the embedded fs.Inode
// already satisfies generically.
func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

// Read implements read (§4.7, §6).
func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.mnt.mu.RLock()
	defer n.mnt.mu.RUnlock()
	count, err := n.mnt.ReadFile(n.ino.entry, dest, uint64(off))
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

// Write implements write (§4.7, §6).
func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	n.mnt.mu.Lock()
	defer n.mnt.mu.Unlock()
	count, err := n.mnt.WriteFile(n.ino.entry, data, uint64(off), false)
	if err != nil {
		return uint32(count), errnoOf(err)
	}
	return uint32(count), 0
}

// fuseDirStream adapts IterateDir's []DirListEntry to fs.DirStream.
type fuseDirStream struct {
	entries []DirListEntry
	pos     int
	mnt     *Mount
}

func (s *fuseDirStream) HasNext() bool { return s.pos < len(s.entries) }

func (s *fuseDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.pos]
	s.pos++

	mode := uint32(fuse.S_IFREG)
	if entry, _ := s.mnt.findByIno(e.Ino); entry != nil && entry.IsDir() {
		mode = fuse.S_IFDIR
	}
	return fuse.DirEntry{Name: e.Name, Ino: uint64(e.Ino), Mode: mode}, 0
}

func (s *fuseDirStream) Close() {}

// Readdir implements the directory-iterate surface of §6, prepending "."
// and ".." the same way IterateDir does for the library-facing callers.
func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.mnt.IterateDir(n.ino.entry, n.ino.Ino, n.ino.entry.ParentDirIno)
	if err != nil {
		return nil, errnoOf(err)
	}
	return &fuseDirStream{entries: entries, mnt: n.mnt}, 0
}
