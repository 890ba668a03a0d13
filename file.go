package portfs

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// File is a convenience object letting callers use an Inode as a regular
// fs.File (§4.7 "File I/O" surfaced as a stdlib-shaped handle, for callers
// that don't need the raw FUSE operations surface).
type File struct {
	ino  *Inode
	name string
	pos  int64
}

// FileDir is the directory counterpart of File, implementing
// fs.ReadDirFile over Mount.IterateDir.
type FileDir struct {
	ino     *Inode
	name    string
	entries []DirListEntry
	cursor  int
}

type fileinfo struct {
	ino  *Inode
	name string
}

var _ fs.File = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)
var _ io.Seeker = (*File)(nil)
var _ fs.ReadDirFile = (*FileDir)(nil)
var _ fs.FileInfo = (*fileinfo)(nil)

// OpenFile returns a fs.File for ino. Directories get a FileDir
// implementing ReadDir; everything else gets a File implementing
// Read/ReadAt/Seek.
func (ino *Inode) OpenFile(name string) fs.File {
	if ino.IsDir() {
		return &FileDir{ino: ino, name: name}
	}
	return &File{ino: ino, name: name}
}

// (File)

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ino.mnt.ReadFile(f.ino.entry, p, uint64(f.pos))
	f.pos += int64(n)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.ino.mnt.ReadFile(f.ino.entry, p, uint64(off))
	if err == nil && n < len(p) {
		return n, io.EOF
	}
	return n, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(f.ino.Size()) + offset
	default:
		return 0, newErr("File.Seek", EInvalid)
	}
	return f.pos, nil
}

// Stat returns the details of the open file.
func (f *File) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(f.name), ino: f.ino}, nil
}

// Close releases nothing: the underlying Inode stays resident until
// EvictInode is called, independent of any File wrapping it.
func (f *File) Close() error { return nil }

// (FileDir)

// Read on a directory is invalid and always fails.
func (d *FileDir) Read(p []byte) (int, error) {
	return 0, newErr("FileDir.Read", EIsDir)
}

func (d *FileDir) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(d.name), ino: d.ino}, nil
}

func (d *FileDir) Close() error {
	d.entries = nil
	d.cursor = 0
	return nil
}

// ReadDir implements fs.ReadDirFile, surfacing "." and ".." alongside the
// directory's stored entries (§4.7 "Directory iterate").
func (d *FileDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		entries, err := d.ino.mnt.IterateDir(d.ino.entry, d.ino.Ino, d.ino.entry.ParentDirIno)
		if err != nil {
			return nil, err
		}
		d.entries = entries
	}

	remaining := d.entries[d.cursor:]
	if n <= 0 {
		n = len(remaining)
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	if n == 0 {
		if len(remaining) == 0 && len(d.entries) > 0 {
			return nil, io.EOF
		}
		return nil, nil
	}

	out := make([]fs.DirEntry, 0, n)
	for _, e := range remaining[:n] {
		entry, _ := d.ino.mnt.findByIno(e.Ino)
		if entry == nil {
			continue
		}
		childIno := &Inode{mnt: d.ino.mnt, entry: entry, Ino: e.Ino}
		out = append(out, fs.FileInfoToDirEntry(&fileinfo{name: e.Name, ino: childIno}))
	}
	d.cursor += n
	return out, nil
}

// (fileinfo)

func (fi *fileinfo) Name() string      { return fi.name }
func (fi *fileinfo) Size() int64       { return int64(fi.ino.Size()) }
func (fi *fileinfo) Mode() fs.FileMode { return fi.ino.Mode() }

// ModTime has no per-entry backing field on disk (§3): PortFS only tracks
// mount-wide last_write_time, so that's what every file reports.
func (fi *fileinfo) ModTime() time.Time {
	return time.Unix(int64(fi.ino.mnt.sb.LastWriteTime), 0)
}
func (fi *fileinfo) IsDir() bool { return fi.ino.IsDir() }
func (fi *fileinfo) Sys() any    { return fi.ino }
