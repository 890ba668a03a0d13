package portfs

import "github.com/google/btree"

// freeExtentIndexDegree is the B-tree branching factor; the index is
// always small (at most a few thousand runs for a freshly fragmented
// image) so there's nothing to tune here.
const freeExtentIndexDegree = 32

// freeExtent is one run of contiguous free blocks, ordered first by
// length descending, then by start block ascending (§4.3 tie-breaks).
// Ascend()ing a btree ordered this way yields longest-available extents
// first, which is exactly the iteration order the allocator wants.
type freeExtent struct {
	length uint32
	start  uint32
}

func (a *freeExtent) Less(than btree.Item) bool {
	b := than.(*freeExtent)
	if a.length != b.length {
		return a.length > b.length
	}
	return a.start < b.start
}

// FreeExtentIndex is the transient ordered multiset of free runs built
// fresh for each allocation request (§4.3). It is never persisted and
// never shared between callers.
type FreeExtentIndex struct {
	tree *btree.BTree
}

// BuildFreeExtentIndex scans bm over [dataStart, totalBlocks) and
// materializes an index of maximal free runs, each capped at
// MaxExtentLength blocks.
func BuildFreeExtentIndex(bm *Bitmap, dataStart, totalBlocks uint32) *FreeExtentIndex {
	idx := &FreeExtentIndex{tree: btree.New(freeExtentIndexDegree)}

	runStart := uint32(0)
	inRun := false
	flush := func(end uint32) {
		if !inRun {
			return
		}
		for start := runStart; start < end; start += MaxExtentLength {
			length := end - start
			if length > MaxExtentLength {
				length = MaxExtentLength
			}
			idx.tree.ReplaceOrInsert(&freeExtent{length: length, start: start})
		}
		inRun = false
	}

	for i := dataStart; i < totalBlocks; i++ {
		if bm.IsSet(i) {
			flush(i)
			continue
		}
		if !inRun {
			inRun = true
			runStart = i
		}
	}
	flush(totalBlocks)

	return idx
}

// Ascend iterates the index in forward order (longest extents first,
// §4.3), calling fn for each until it returns false or the index is
// exhausted.
func (idx *FreeExtentIndex) Ascend(fn func(start, length uint32) bool) {
	idx.tree.Ascend(func(it btree.Item) bool {
		fe := it.(*freeExtent)
		return fn(fe.start, fe.length)
	})
}

// Len reports how many free runs are in the index.
func (idx *FreeExtentIndex) Len() int {
	return idx.tree.Len()
}

// Destroy releases the index. It holds no resources beyond the tree
// itself, so this just drops the reference for the caller's convenience
// and to document the index's per-call lifetime (§4.3, §5).
func (idx *FreeExtentIndex) Destroy() {
	idx.tree = nil
}
