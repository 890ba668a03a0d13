package portfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
)

// Codec performs the big-endian encode/decode of every on-disk record in
// §4.1. Endianness is the only transformation applied: field order and
// width mirror the in-memory structs exactly, so a round-trip
// decode(encode(x)) reproduces x bit for bit.

// encodeSuperblock writes sb into a SuperblockSize-byte buffer, field order
// matching the struct declaration exactly (mirrors the teacher's
// reflect-driven Superblock.UnmarshalBinary, minus the magic-based
// endianness sniff: PortFS is always big-endian).
func encodeSuperblock(sb *Superblock) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(SuperblockSize)
	v := reflect.ValueOf(sb).Elem()
	for i := 0; i < v.NumField(); i++ {
		binary.Write(buf, binary.BigEndian, v.Field(i).Interface())
	}
	return buf.Bytes()
}

// decodeSuperblock parses a SuperblockSize-byte buffer produced by
// encodeSuperblock.
func decodeSuperblock(data []byte) (*Superblock, error) {
	if len(data) < SuperblockSize {
		return nil, newErr("decodeSuperblock", EIO)
	}
	sb := &Superblock{}
	r := bytes.NewReader(data)
	v := reflect.ValueOf(sb).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.BigEndian, v.Field(i).Addr().Interface()); err != nil {
			return nil, wrapErr("decodeSuperblock", EIO, err)
		}
	}
	return sb, nil
}

// WriteSuperblock stamps sb, big-endian encoded, at byte 0 of f. Format
// uses it, and it is exported for callers that lay out an image
// themselves without reaching into this package's encode/decode
// internals.
func WriteSuperblock(f io.WriterAt, sb *Superblock) error {
	sb.LastWriteTime = uint64(now().Unix())
	if _, err := f.WriteAt(encodeSuperblock(sb), 0); err != nil {
		return wrapErr("WriteSuperblock", EIO, err)
	}
	return nil
}

// Extent is a contiguous run of blocks owned by one file.
type Extent struct {
	StartBlock uint32
	Length     uint32
}

func encodeExtent(e Extent, buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], e.StartBlock)
	binary.BigEndian.PutUint32(buf[4:8], e.Length)
}

func decodeExtent(buf []byte) Extent {
	return Extent{
		StartBlock: binary.BigEndian.Uint32(buf[0:4]),
		Length:     binary.BigEndian.Uint32(buf[4:8]),
	}
}

// FiletableEntry is the persistent record for one live file or directory
// (§3). The Mode field is the discriminant: Mode == 0 marks a free slot,
// otherwise Mode&S_IFMT picks the file or directory variant.
type FiletableEntry struct {
	Ino         uint32
	Mode        uint16
	SizeInBytes uint64

	// file variant
	ExtentCount   uint16
	ExtentsBlock  uint32
	DirectExtents [DirectExtents]Extent

	// directory variant
	DirBlock     uint32
	ParentDirIno uint32

	// resident-only auxiliary state (§3 "Lifecycle of an entry", §5
	// "Ownership of per-entry auxiliary buffers"). Never encoded.
	IndirectExtents []Extent
	DirEntries      []DirEntry
}

// IsFree reports whether this slot holds no live file or directory.
func (e *FiletableEntry) IsFree() bool { return e.Mode == 0 }

// IsDir reports whether this entry is a directory, per the mode&S_IFMT
// discriminant (§9 Design Notes: "tagged variant... discriminated by
// mode & S_IFMT").
func (e *FiletableEntry) IsDir() bool { return uint32(e.Mode)&S_IFMT == S_IFDIR }

// encodeFiletableEntry writes e into a FiletableEntrySize-byte buffer.
// Mirrors the teacher's per-type manual field encode in inode.go (a
// reflect-driven approach doesn't fit a discriminated union cleanly).
func encodeFiletableEntry(e *FiletableEntry) []byte {
	buf := make([]byte, FiletableEntrySize)
	binary.BigEndian.PutUint32(buf[0:4], e.Ino)
	binary.BigEndian.PutUint16(buf[4:6], e.Mode)
	binary.BigEndian.PutUint64(buf[6:14], e.SizeInBytes)

	if e.Mode == 0 {
		return buf
	}

	if e.IsDir() {
		binary.BigEndian.PutUint32(buf[14:18], e.DirBlock)
		binary.BigEndian.PutUint32(buf[18:22], e.ParentDirIno)
		return buf
	}

	binary.BigEndian.PutUint16(buf[14:16], e.ExtentCount)
	binary.BigEndian.PutUint32(buf[16:20], e.ExtentsBlock)
	off := 20
	for i := 0; i < DirectExtents; i++ {
		encodeExtent(e.DirectExtents[i], buf[off:off+ExtentSize])
		off += ExtentSize
	}
	return buf
}

// decodeFiletableEntry parses a FiletableEntrySize-byte buffer produced by
// encodeFiletableEntry.
func decodeFiletableEntry(buf []byte) (*FiletableEntry, error) {
	if len(buf) < FiletableEntrySize {
		return nil, newErr("decodeFiletableEntry", EIO)
	}
	e := &FiletableEntry{
		Ino:         binary.BigEndian.Uint32(buf[0:4]),
		Mode:        binary.BigEndian.Uint16(buf[4:6]),
		SizeInBytes: binary.BigEndian.Uint64(buf[6:14]),
	}

	if e.Mode == 0 {
		return e, nil
	}

	if e.IsDir() {
		e.DirBlock = binary.BigEndian.Uint32(buf[14:18])
		e.ParentDirIno = binary.BigEndian.Uint32(buf[18:22])
		return e, nil
	}

	e.ExtentCount = binary.BigEndian.Uint16(buf[14:16])
	e.ExtentsBlock = binary.BigEndian.Uint32(buf[16:20])
	off := 20
	for i := 0; i < DirectExtents; i++ {
		e.DirectExtents[i] = decodeExtent(buf[off : off+ExtentSize])
		off += ExtentSize
	}
	return e, nil
}

// DirEntry is one fixed-slot record inside a directory block.
type DirEntry struct {
	Name        string // at most MaxNameLength bytes, NUL-padded on disk
	InodeNumber uint32
}

// IsFree reports whether this slot is unused.
func (d DirEntry) IsFree() bool { return d.InodeNumber == 0 }

func encodeDirEntry(d DirEntry, buf []byte) {
	var nameBuf [MaxNameLength]byte
	copy(nameBuf[:], d.Name)
	copy(buf[0:MaxNameLength], nameBuf[:])
	binary.BigEndian.PutUint32(buf[MaxNameLength:MaxNameLength+4], d.InodeNumber)
}

func decodeDirEntry(buf []byte) DirEntry {
	nul := bytes.IndexByte(buf[0:MaxNameLength], 0)
	var name string
	if nul == -1 {
		name = string(buf[0:MaxNameLength])
	} else {
		name = string(buf[0:nul])
	}
	return DirEntry{
		Name:        name,
		InodeNumber: binary.BigEndian.Uint32(buf[MaxNameLength : MaxNameLength+4]),
	}
}

// encodeIndirectPage serializes a slice of extents into one block-sized
// page. Unused trailing slots are zeroed, which decodes back as
// zero-length extents.
func encodeIndirectPage(extents []Extent, blockSize uint32) []byte {
	buf := make([]byte, blockSize)
	off := 0
	for _, e := range extents {
		if off+ExtentSize > len(buf) {
			break
		}
		encodeExtent(e, buf[off:off+ExtentSize])
		off += ExtentSize
	}
	return buf
}

// decodeIndirectPage parses a block-sized indirect extent page into its
// (possibly zero-length, meaning empty) extent records.
func decodeIndirectPage(buf []byte) []Extent {
	count := len(buf) / ExtentSize
	out := make([]Extent, count)
	for i := 0; i < count; i++ {
		out[i] = decodeExtent(buf[i*ExtentSize : (i+1)*ExtentSize])
	}
	return out
}
