package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// ErrMalformedChunk запись чанка не декодируется. Чанк при этом не меняется.
var ErrMalformedChunk = errors.New("storage: malformed chunk record")

// airRun маркер серии блоков воздуха, за ним следует uvarint длины серии
const airRun = 0x00

// EncodeBlocks сериализует блоки чанка в поток записей.
// Воздух пишется сериями: 0x00 uvarint(n). Остальные блоки четырьмя байтами:
// material<<4|health, R, G, B.
func EncodeBlocks(blocks []block.Block) []byte {
	out := make([]byte, 0, len(blocks))
	var varint [binary.MaxVarintLen64]byte

	for i := 0; i < len(blocks); {
		if blocks[i].IsAir() {
			j := i
			for j < len(blocks) && blocks[j].IsAir() {
				j++
			}
			out = append(out, airRun)
			n := binary.PutUvarint(varint[:], uint64(j-i))
			out = append(out, varint[:n]...)
			i = j
			continue
		}
		out = append(out, blocks[i].Pack(), blocks[i].R, blocks[i].G, blocks[i].B)
		i++
	}
	return out
}

// DecodeBlocks разбирает поток записей ровно в count блоков
func DecodeBlocks(data []byte, count int) ([]block.Block, error) {
	blocks := make([]block.Block, 0, count)
	for pos := 0; pos < len(data); {
		head := data[pos]
		if head == airRun {
			run, n := binary.Uvarint(data[pos+1:])
			if n <= 0 || run == 0 || run > uint64(count-len(blocks)) {
				return nil, fmt.Errorf("%w: bad air run at offset %d", ErrMalformedChunk, pos)
			}
			for k := uint64(0); k < run; k++ {
				blocks = append(blocks, block.AIR)
			}
			pos += 1 + n
			continue
		}

		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated block at offset %d", ErrMalformedChunk, pos)
		}
		if len(blocks) == count {
			return nil, fmt.Errorf("%w: more than %d blocks", ErrMalformedChunk, count)
		}
		b := block.Unpack(head, data[pos+1], data[pos+2], data[pos+3])
		if b.IsAir() || !block.IsValidMaterial(b.Material) {
			return nil, fmt.Errorf("%w: bad block header 0x%02x at offset %d", ErrMalformedChunk, head, pos)
		}
		blocks = append(blocks, b)
		pos += 4
	}

	if len(blocks) != count {
		return nil, fmt.Errorf("%w: %d blocks, expected %d", ErrMalformedChunk, len(blocks), count)
	}
	return blocks, nil
}

// maxDecodedChunk предел распакованной записи: с запасом больше чанка из одних
// четырёхбайтовых блоков (ChunkVolume*4)
const maxDecodedChunk = 1 << 20

// chunkCodec сжатие записей чанка. EncodeAll/DecodeAll безопасны для
// одновременного вызова.
type chunkCodec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func newChunkCodec() (*chunkCodec, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd компрессора: %w", err)
	}
	decompressor, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedChunk))
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("ошибка создания zstd декомпрессора: %w", err)
	}
	return &chunkCodec{compressor: compressor, decompressor: decompressor}, nil
}

func (c *chunkCodec) encode(blocks []block.Block) []byte {
	return c.compressor.EncodeAll(EncodeBlocks(blocks), nil)
}

func (c *chunkCodec) decode(data []byte) ([]block.Block, error) {
	raw, err := c.decompressor.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	return DecodeBlocks(raw, world.ChunkVolume)
}

func (c *chunkCodec) close() {
	c.compressor.Close()
	c.decompressor.Close()
}
