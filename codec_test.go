package portfs

import "testing"

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &Superblock{
		Magic:            Magic,
		BlockSize:        4096,
		TotalBlocks:      1000,
		FiletableStart:   1,
		FiletableSize:    4,
		BlockBitmapStart: 5,
		BlockBitmapSize:  1,
		DataStart:        6,
		MaxFileCount:     64,
		Checksum:         0xdeadbeef,
		LastMountTime:    111,
		LastWriteTime:    222,
		Flags:            3,
	}

	got, err := decodeSuperblock(encodeSuperblock(sb))
	if err != nil {
		t.Fatalf("decodeSuperblock: %v", err)
	}
	if *got != *sb {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, sb)
	}
}

func TestFiletableEntryRoundTripFile(t *testing.T) {
	e := &FiletableEntry{
		Ino:         7,
		Mode:        S_IFREG | 0644,
		SizeInBytes: 12345,
		ExtentCount: 2,
		ExtentsBlock: 0,
		DirectExtents: [DirectExtents]Extent{
			{StartBlock: 10, Length: 3},
			{StartBlock: 20, Length: 1},
		},
	}

	buf := encodeFiletableEntry(e)
	if len(buf) != FiletableEntrySize {
		t.Fatalf("encoded size = %d, want %d", len(buf), FiletableEntrySize)
	}

	got, err := decodeFiletableEntry(buf)
	if err != nil {
		t.Fatalf("decodeFiletableEntry: %v", err)
	}
	if got.Ino != e.Ino || got.Mode != e.Mode || got.SizeInBytes != e.SizeInBytes {
		t.Fatalf("header mismatch: got %+v, want %+v", got, e)
	}
	if got.ExtentCount != e.ExtentCount || got.DirectExtents != e.DirectExtents {
		t.Fatalf("extent mismatch: got %+v, want %+v", got, e)
	}
}

func TestFiletableEntryRoundTripDir(t *testing.T) {
	e := &FiletableEntry{
		Ino:          3,
		Mode:         S_IFDIR | 0755,
		SizeInBytes:  0,
		DirBlock:     42,
		ParentDirIno: 1,
	}

	got, err := decodeFiletableEntry(encodeFiletableEntry(e))
	if err != nil {
		t.Fatalf("decodeFiletableEntry: %v", err)
	}
	if got.Ino != e.Ino || got.Mode != e.Mode || got.DirBlock != e.DirBlock || got.ParentDirIno != e.ParentDirIno {
		t.Fatalf("mismatch: got %+v, want %+v", got, e)
	}
	if !got.IsDir() {
		t.Fatal("decoded entry should report IsDir() == true")
	}
}

func TestFiletableEntryFreeSlotSentinel(t *testing.T) {
	e := &FiletableEntry{}
	if !e.IsFree() {
		t.Fatal("zero-value entry should be free (mode == 0 sentinel)")
	}

	buf := encodeFiletableEntry(e)
	got, err := decodeFiletableEntry(buf)
	if err != nil {
		t.Fatalf("decodeFiletableEntry: %v", err)
	}
	if !got.IsFree() {
		t.Fatal("decoded zeroed entry should be free")
	}
}

func TestDirEntryRoundTrip(t *testing.T) {
	d := DirEntry{Name: "hello.txt", InodeNumber: 9}
	buf := make([]byte, DirEntrySize)
	encodeDirEntry(d, buf)

	got := decodeDirEntry(buf)
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestDirEntryFreeSlot(t *testing.T) {
	var d DirEntry
	if !d.IsFree() {
		t.Fatal("zero-value DirEntry should be free")
	}
}

func TestDirEntryMaxLengthName(t *testing.T) {
	name := make([]byte, MaxNameLength)
	for i := range name {
		name[i] = 'a'
	}
	d := DirEntry{Name: string(name), InodeNumber: 5}
	buf := make([]byte, DirEntrySize)
	encodeDirEntry(d, buf)

	got := decodeDirEntry(buf)
	if got.Name != d.Name {
		t.Fatalf("name truncated: got %d bytes, want %d", len(got.Name), len(d.Name))
	}
}

func TestIndirectPageRoundTrip(t *testing.T) {
	extents := []Extent{{StartBlock: 1, Length: 2}, {StartBlock: 5, Length: 9}}
	page := encodeIndirectPage(extents, 4096)

	got := decodeIndirectPage(page)
	if len(got) < len(extents) {
		t.Fatalf("decoded %d extents, want at least %d", len(got), len(extents))
	}
	for i, e := range extents {
		if got[i] != e {
			t.Fatalf("extent %d mismatch: got %+v, want %+v", i, got[i], e)
		}
	}
}
