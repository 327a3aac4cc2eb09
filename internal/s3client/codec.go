package s3client

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder: EncodeAll and DecodeAll are safe for concurrent use.
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
}

// Compress zstd-compresses data.
func Compress(data []byte) ([]byte, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("compress: %w", codecErr)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("decompress: %w", codecErr)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
