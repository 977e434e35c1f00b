package perf

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compressor applies zstd compression to cache values once they cross
// threshold bytes; below threshold, MaybeCompress passes the value
// through unchanged.
type Compressor struct {
	threshold int

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewCompressor(threshold int) *Compressor {
	return &Compressor{threshold: threshold}
}

func (c *Compressor) ensure() error {
	if c.encoder != nil {
		return nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	c.encoder = enc
	c.decoder = dec
	return nil
}

// MaybeCompress compresses value when the threshold is positive and
// value's length exceeds it, reporting whether compression was
// applied.
func (c *Compressor) MaybeCompress(value []byte) ([]byte, bool, error) {
	if c.threshold <= 0 || len(value) <= c.threshold {
		return value, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(); err != nil {
		return nil, false, err
	}
	return c.encoder.EncodeAll(value, nil), true, nil
}

func (c *Compressor) Decompress(value []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return c.decoder.DecodeAll(value, nil)
}
