package db

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/corpusloom/loom/codec"
	"github.com/corpusloom/loom/model"
)

// Storage turns values into the compressed blobs the store persists and back.
// Implementations must be safe for concurrent use: assembly workers compress
// rows in parallel.
type Storage interface {
	Compress(v any) ([]byte, error)
	Decompress(data []byte, v any) error
	Name() string
}

// StorageType selects one of the built-in storage strategies.
type StorageType int

// Built-in storage strategies.
const (
	// StorageJSON encodes values with the configured codec and compresses
	// the result with zstd. The right choice for instances and other
	// structured rows.
	StorageJSON StorageType = iota

	// StorageTensor lays out numeric feature tensors in a compact binary
	// form and compresses them with lz4. Values must be model.Tensor.
	StorageTensor
)

// String returns a string representation of the StorageType.
func (st StorageType) String() string {
	switch st {
	case StorageJSON:
		return "json"
	case StorageTensor:
		return "tensor"
	default:
		return "unknown"
	}
}

// NewStorage returns the strategy for the given type.
func NewStorage(st StorageType) (Storage, error) {
	switch st {
	case StorageJSON:
		return NewJSONStorage(nil), nil
	case StorageTensor:
		return NewTensorStorage(), nil
	default:
		return nil, fmt.Errorf("invalid storage type: %d", st)
	}
}

// zstd encoder/decoder pools shared by all JSON storages.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	// Default level balances compression ratio vs speed
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// JSONStorage encodes values with a codec and compresses the result with
// zstd. The zstd frame records the uncompressed size, so no extra framing is
// needed.
type JSONStorage struct {
	codec codec.Codec
}

// NewJSONStorage creates a JSONStorage with the given codec.
// If c is nil, codec.Default is used.
func NewJSONStorage(c codec.Codec) *JSONStorage {
	if c == nil {
		c = codec.Default
	}

	return &JSONStorage{codec: c}
}

// Compress encodes v and compresses the encoding.
func (s *JSONStorage) Compress(v any) ([]byte, error) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses data and decodes it into v.
func (s *JSONStorage) Decompress(data []byte, v any) error {
	dec := getZstdDecoder()
	defer putZstdDecoder(dec)

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress value: %w", err)
	}

	if err := s.codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}

	return nil
}

// Name returns the strategy name including the codec, e.g. "json+zstd".
func (s *JSONStorage) Name() string {
	return s.codec.Name() + "+zstd"
}

// Tensor blob layout:
//
//	[dtype uint8][ndims uint8][dims ...int64]
//	[UncompressedSize uint32][CompressedSize uint32][block bytes]
//
// If CompressedSize == 0, the block is stored uncompressed. The block header
// mirrors the lz4 block framing used elsewhere, since lz4 blocks do not
// record their own uncompressed size.
const blockHeaderSize = 8

var dtypeCodes = map[model.DType]uint8{
	model.Float32: 1,
	model.Float16: 2,
	model.Int64:   3,
	model.Uint8:   4,
}

var codeDtypes = map[uint8]model.DType{
	1: model.Float32,
	2: model.Float16,
	3: model.Int64,
	4: model.Uint8,
}

// TensorStorage persists model.Tensor values as lz4-compressed binary blobs.
type TensorStorage struct{}

// NewTensorStorage creates a TensorStorage.
func NewTensorStorage() *TensorStorage {
	return &TensorStorage{}
}

// Compress lays out the tensor and compresses its data block.
func (s *TensorStorage) Compress(v any) ([]byte, error) {
	var t model.Tensor

	switch tv := v.(type) {
	case model.Tensor:
		t = tv
	case *model.Tensor:
		t = *tv
	default:
		return nil, fmt.Errorf("tensor storage holds model.Tensor values, got %T", v)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tensor: %w", err)
	}

	code, ok := dtypeCodes[t.DType]
	if !ok {
		return nil, fmt.Errorf("unknown tensor dtype: %q", t.DType)
	}

	if len(t.Shape) > 255 {
		return nil, fmt.Errorf("tensor has %d dimensions, at most 255 supported", len(t.Shape))
	}

	head := make([]byte, 2+8*len(t.Shape))
	head[0] = code
	head[1] = uint8(len(t.Shape))
	for i, dim := range t.Shape {
		binary.LittleEndian.PutUint64(head[2+8*i:], uint64(dim))
	}

	block, err := compressBlockLZ4(t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to compress tensor data: %w", err)
	}

	return append(head, block...), nil
}

// Decompress expands data into the tensor pointed to by v.
func (s *TensorStorage) Decompress(data []byte, v any) error {
	t, ok := v.(*model.Tensor)
	if !ok {
		return fmt.Errorf("tensor storage decompresses into *model.Tensor, got %T", v)
	}

	if len(data) < 2 {
		return errors.New("tensor blob too small for header")
	}

	dtype, ok := codeDtypes[data[0]]
	if !ok {
		return fmt.Errorf("unknown tensor dtype code: %d", data[0])
	}

	ndims := int(data[1])
	if len(data) < 2+8*ndims {
		return errors.New("tensor blob too small for shape")
	}

	shape := make([]int64, ndims)
	for i := range shape {
		shape[i] = int64(binary.LittleEndian.Uint64(data[2+8*i:]))
	}

	raw, err := decompressBlockLZ4(data[2+8*ndims:])
	if err != nil {
		return fmt.Errorf("failed to decompress tensor data: %w", err)
	}

	*t = model.Tensor{DType: dtype, Shape: shape, Data: raw}

	return t.Validate()
}

// Name returns the strategy name ("tensor+lz4").
func (s *TensorStorage) Name() string {
	return "tensor+lz4"
}

// compressBlockLZ4 frames data as an lz4 block. Incompressible data is stored
// raw with CompressedSize == 0, as is any block the compressor cannot shrink
// below 90% of its input.
func compressBlockLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		result := make([]byte, blockHeaderSize)
		return result, nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}

	if n == 0 || float64(n) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0) // 0 = uncompressed
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+n)
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(n))
	copy(result[blockHeaderSize:], compressed[:n])
	return result, nil
}

// decompressBlockLZ4 expands a block framed by compressBlockLZ4.
func decompressBlockLZ4(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)) < blockHeaderSize+uncompressedSize {
			return nil, errors.New("block data too small")
		}
		out := make([]byte, uncompressedSize)
		copy(out, data[blockHeaderSize:blockHeaderSize+uncompressedSize])
		return out, nil
	}

	if uint32(len(data)) < blockHeaderSize+compressedSize {
		return nil, errors.New("compressed block data too small")
	}

	result := make([]byte, uncompressedSize)

	n, err := lz4.UncompressBlock(data[blockHeaderSize:blockHeaderSize+compressedSize], result)
	if err != nil {
		return nil, err
	}

	if uint32(n) != uncompressedSize {
		return nil, errors.New("decompressed size mismatch")
	}

	return result, nil
}
