package voxel

import "encoding/binary"

// EncodeRLE compresses a chunk's blocks into a sequence of
// (u16 blockId, u16 runLength) records in the chunk's native y-major,
// z-mid, x-minor traversal order.
func EncodeRLE(c *Chunk) []byte {
	out := make([]byte, 0, ChunkVolume/8)

	current := c.Blocks[0]
	var run uint32 = 1

	flush := func(block Block, runLength uint32) {
		var rec [4]byte
		binary.LittleEndian.PutUint16(rec[0:2], uint16(block))
		binary.LittleEndian.PutUint16(rec[2:4], uint16(runLength))
		out = append(out, rec[:]...)
	}

	for i := 1; i < ChunkVolume; i++ {
		b := c.Blocks[i]
		if b == current && run < 0xFFFF {
			run++
			continue
		}
		flush(current, run)
		current = b
		run = 1
	}
	flush(current, run)
	return out
}

// DecodeRLE reverses EncodeRLE into a fresh Chunk. It rejects the payload
// (ok=false) if its length is not a multiple of 4 or if the decoded run
// count does not land on exactly ChunkVolume blocks: a partial or overrun
// decode must not mutate any existing chunk, so the caller always receives
// either a complete chunk or nothing.
func DecodeRLE(data []byte) (*Chunk, bool) {
	if len(data)%4 != 0 {
		return nil, false
	}

	c := NewChunk()
	index := 0
	for i := 0; i+4 <= len(data); i += 4 {
		blockID := binary.LittleEndian.Uint16(data[i : i+2])
		runLength := binary.LittleEndian.Uint16(data[i+2 : i+4])
		for run := 0; run < int(runLength); run++ {
			if index >= ChunkVolume {
				return nil, false
			}
			c.Blocks[index] = Block(blockID)
			index++
		}
	}
	if index != ChunkVolume {
		return nil, false
	}
	return c, true
}
