package compress

import (
	"bytes"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/xerrors"

	"github.com/devcache/devcache/cache/pool"
)

// CompressResult contains the outcome of a compression call
type CompressResult struct {
	Data           []byte        `json:"-"`
	OriginalSize   int           `json:"original_size"`
	CompressedSize int           `json:"compressed_size"`
	Ratio          float64       `json:"ratio"`
	Duration       time.Duration `json:"duration"`
}

// DecompressResult contains the outcome of a decompression call
type DecompressResult struct {
	Data             []byte        `json:"-"`
	CompressedSize   int           `json:"compressed_size"`
	DecompressedSize int           `json:"decompressed_size"`
	Duration         time.Duration `json:"duration"`
}

// Compressor serializes and compresses payloads
type Compressor interface {
	Compress(data []byte) (CompressResult, error)
	Decompress(data []byte) (DecompressResult, error)
	Shrink() int
	Release()
}

const (
	gzipWriterPoolCapacity = 16
	gzipWriterPoolMinIdle  = 1
)

// InlineCompressor compresses synchronously on the calling goroutine.
// gzip writers are pooled; their internal buffers dominate the allocation
// cost of a compression call.
type InlineCompressor struct {
	level      int
	bufferPool *pool.BufferPool
	writerPool *pool.ObjectPool[*gzip.Writer]
}

// NewInlineCompressor creates a new InlineCompressor.
// The compression level is clamped to the valid gzip range.
func NewInlineCompressor(level int, bufferPool *pool.BufferPool) *InlineCompressor {
	if level < gzip.BestSpeed {
		level = gzip.BestSpeed
	}
	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}

	if bufferPool == nil {
		bufferPool = pool.NewBufferPool()
	}

	writerPool := pool.NewObjectPool(gzipWriterPoolCapacity, gzipWriterPoolMinIdle, func() *gzip.Writer {
		// the level is clamped above, NewWriterLevel cannot fail
		writer, _ := gzip.NewWriterLevel(io.Discard, level)
		return writer
	}, func(writer *gzip.Writer) {
		writer.Reset(io.Discard)
	})

	return &InlineCompressor{
		level:      level,
		bufferPool: bufferPool,
		writerPool: writerPool,
	}
}

// Compress compresses data with gzip
func (compressor *InlineCompressor) Compress(data []byte) (CompressResult, error) {
	startTime := time.Now()

	buf := compressor.bufferPool.Get(len(data))
	writer := bytes.NewBuffer(buf)

	gzipWriter := compressor.writerPool.Acquire()
	gzipWriter.Reset(writer)

	_, err := gzipWriter.Write(data)
	if err != nil {
		compressor.writerPool.Release(gzipWriter)
		compressor.bufferPool.Put(buf)
		return CompressResult{}, xerrors.Errorf("failed to compress data: %w", err)
	}

	err = gzipWriter.Close()
	compressor.writerPool.Release(gzipWriter)
	if err != nil {
		compressor.bufferPool.Put(buf)
		return CompressResult{}, xerrors.Errorf("failed to finalize gzip stream: %w", err)
	}

	compressed := make([]byte, writer.Len())
	copy(compressed, writer.Bytes())
	compressor.bufferPool.Put(buf)

	result := CompressResult{
		Data:           compressed,
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
		Duration:       time.Since(startTime),
	}

	if len(data) > 0 {
		result.Ratio = float64(len(compressed)) / float64(len(data))
	}

	return result, nil
}

// Decompress decompresses gzip data
func (compressor *InlineCompressor) Decompress(data []byte) (DecompressResult, error) {
	startTime := time.Now()

	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return DecompressResult{}, xerrors.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decompressed, err := io.ReadAll(gzipReader)
	if err != nil {
		return DecompressResult{}, xerrors.Errorf("failed to decompress data: %w", err)
	}

	return DecompressResult{
		Data:             decompressed,
		CompressedSize:   len(data),
		DecompressedSize: len(decompressed),
		Duration:         time.Since(startTime),
	}, nil
}

// Shrink trims idle pooled gzip writers
func (compressor *InlineCompressor) Shrink() int {
	return compressor.writerPool.Shrink()
}

// GetWriterPoolStats returns gzip writer pool statistics
func (compressor *InlineCompressor) GetWriterPoolStats() pool.ObjectPoolStats {
	return compressor.writerPool.GetStats()
}

// Release releases resources
func (compressor *InlineCompressor) Release() {
}
