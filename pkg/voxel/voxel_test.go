package voxel

import "testing"

func TestWorldGetSetBlock(t *testing.T) {
	reg := NewRegistry()
	reg.MarkSolid(1)
	w := NewWorld(reg)

	if got := w.GetBlock(5, 10, 5); got != BlockAir {
		t.Errorf("absent chunk should read air, got %v", got)
	}

	w.SetBlock(5, 10, 5, 1)
	if got := w.GetBlock(5, 10, 5); got != 1 {
		t.Errorf("GetBlock after SetBlock = %v, want 1", got)
	}
	if !w.IsSolid(5, 10, 5) {
		t.Error("block 1 should be solid")
	}

	// negative coordinates exercise floor division across chunk boundaries.
	w.SetBlock(-1, 0, -1, 2)
	if got := w.GetBlock(-1, 0, -1); got != 2 {
		t.Errorf("negative coord GetBlock = %v, want 2", got)
	}
	if got := w.GetBlock(-16, 0, -16); got != BlockAir {
		t.Errorf("neighboring chunk should be untouched, got %v", got)
	}
}

func TestChunkOutOfRangeIsAir(t *testing.T) {
	c := NewChunk()
	c.Set(0, 0, 0, 9)
	if got := c.Get(-1, 0, 0); got != BlockAir {
		t.Errorf("out-of-range Get = %v, want air", got)
	}
	c.Set(100, 0, 0, 9) // ignored
	if got := c.Get(0, 0, 0); got != 9 {
		t.Errorf("in-range block clobbered: %v", got)
	}
}

func TestEncodeRLEUniformChunk(t *testing.T) {
	c := NewChunk()
	c.Fill(7)
	encoded := EncodeRLE(c)
	wantLen := 4 * ceilDiv(ChunkVolume, 0xFFFF)
	if len(encoded) != wantLen {
		t.Errorf("uniform chunk encoded length = %d, want %d", len(encoded), wantLen)
	}
}

func TestRLERoundTrip(t *testing.T) {
	c := NewChunk()
	for y := 0; y < ChunkY; y++ {
		for z := 0; z < ChunkZ; z++ {
			for x := 0; x < ChunkX; x++ {
				var b Block
				switch {
				case y == 0:
					b = 1
				case y < 4:
					b = 2
				default:
					b = BlockAir
				}
				c.Set(x, y, z, b)
			}
		}
	}

	encoded := EncodeRLE(c)
	decoded, ok := DecodeRLE(encoded)
	if !ok {
		t.Fatal("decode failed")
	}
	if *decoded != *c {
		t.Error("decoded chunk does not match original block-for-block")
	}
}

func TestDecodeRLERejectsBadLength(t *testing.T) {
	if _, ok := DecodeRLE([]byte{1, 2, 3}); ok {
		t.Error("expected length-not-multiple-of-4 to be rejected")
	}
}

func TestDecodeRLERejectsCountMismatch(t *testing.T) {
	// a single run shorter than CHUNK_VOLUME must be rejected.
	short := make([]byte, 4)
	short[0], short[1] = 0, 0
	short[2], short[3] = 1, 0 // run length 1, far short of ChunkVolume
	if _, ok := DecodeRLE(short); ok {
		t.Error("expected short run count to be rejected")
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
