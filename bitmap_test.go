package portfs

import "testing"

func TestBitmapSetClear(t *testing.T) {
	bm := NewBitmap(64)
	if bm.IsSet(10) {
		t.Fatal("fresh bitmap should have every bit clear")
	}

	if err := bm.Set(10); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !bm.IsSet(10) {
		t.Fatal("bit 10 should be set")
	}
	if !bm.Dirty() {
		t.Fatal("bitmap should be dirty after Set")
	}

	if err := bm.Clear(10); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if bm.IsSet(10) {
		t.Fatal("bit 10 should be clear again")
	}
}

func TestBitmapRanges(t *testing.T) {
	bm := NewBitmap(64)
	if err := bm.SetRange(4, 8); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	for i := uint32(4); i < 12; i++ {
		if !bm.IsSet(i) {
			t.Fatalf("bit %d should be set", i)
		}
	}
	if bm.IsSet(3) || bm.IsSet(12) {
		t.Fatal("range boundaries leaked")
	}

	if err := bm.ClearRange(4, 8); err != nil {
		t.Fatalf("ClearRange: %v", err)
	}
	for i := uint32(4); i < 12; i++ {
		if bm.IsSet(i) {
			t.Fatalf("bit %d should be clear", i)
		}
	}
}

func TestBitmapFindFirstClear(t *testing.T) {
	bm := NewBitmap(16)
	if err := bm.SetRange(0, 5); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if got := bm.FindFirstClear(0, 16); got != 5 {
		t.Fatalf("FindFirstClear = %d, want 5", got)
	}

	if err := bm.SetRange(5, 11); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if got := bm.FindFirstClear(0, 16); got != -1 {
		t.Fatalf("FindFirstClear = %d, want -1 (fully allocated)", got)
	}
}

func TestBitmapLoadRoundTrip(t *testing.T) {
	bm := NewBitmap(32)
	if err := bm.Set(1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := bm.Set(30); err != nil {
		t.Fatalf("Set: %v", err)
	}

	loaded := LoadBitmap(bm.Bytes())
	if !loaded.IsSet(1) || !loaded.IsSet(30) {
		t.Fatal("loaded bitmap lost set bits")
	}
	if loaded.IsSet(2) {
		t.Fatal("loaded bitmap gained a bit")
	}
}
