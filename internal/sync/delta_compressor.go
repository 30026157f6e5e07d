package sync

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-terrain/internal/eventbus"
)

// Кодировки пакета изменений
const (
	EncodingJSON = "json"
	EncodingZstd = "zstd"
)

// DeltaCompressor кодирует/декодирует пакет изменений блоков в компактный вид.
type DeltaCompressor interface {
	Encoding() string
	Compress(changes []eventbus.BlockChangePayload) ([]byte, error)
	Decompress(data []byte) ([]eventbus.BlockChangePayload, error)
}

// CompressorFor компрессор по имени кодировки из BlockBatchPayload
func CompressorFor(encoding string) (DeltaCompressor, error) {
	switch encoding {
	case EncodingJSON, "":
		return NewPassthroughCompressor(), nil
	case EncodingZstd:
		return NewZstdCompressor()
	default:
		return nil, fmt.Errorf("неизвестная кодировка пакета %q", encoding)
	}
}

type passthroughCompressor struct{}

// NewPassthroughCompressor пакет как JSON массив без сжатия
func NewPassthroughCompressor() DeltaCompressor { return passthroughCompressor{} }

func (passthroughCompressor) Encoding() string { return EncodingJSON }

func (passthroughCompressor) Compress(changes []eventbus.BlockChangePayload) ([]byte, error) {
	return json.Marshal(changes)
}

func (passthroughCompressor) Decompress(data []byte) ([]eventbus.BlockChangePayload, error) {
	var changes []eventbus.BlockChangePayload
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return changes, nil
}

// maxDecodedBatch предел распакованного пакета
const maxDecodedBatch = 16 << 20

// zstdCompressor сжимает JSON пакет zstd. Соседние изменения одного чанка
// повторяют почти весь текст, поэтому сжатие выигрывает в разы.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor создаёт компрессор. Encoder и Decoder безопасны для
// параллельного EncodeAll/DecodeAll.
func NewZstdCompressor() (DeltaCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBatch))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (z *zstdCompressor) Encoding() string { return EncodingZstd }

func (z *zstdCompressor) Compress(changes []eventbus.BlockChangePayload) ([]byte, error) {
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(raw, nil), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]eventbus.BlockChangePayload, error) {
	raw, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return passthroughCompressor{}.Decompress(raw)
}
