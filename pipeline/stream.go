package pipeline

import (
	"context"
	"sync"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/observability/metrics"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
)

// StreamConfig bounds the in-memory chunk buffer a streaming ingest holds
// between the loader/chunker producer and the embedder/retriever
// consumer. When the buffer reaches Capacity items, the producer pauses
// until the consumer has drained it back down to LowWatermark (a
// fraction of Capacity): stopping and resuming at the same mark would
// thrash every time a single item is added or removed, so a hysteresis
// gap is used instead.
type StreamConfig struct {
	Capacity             int
	MemoryThresholdBytes uint64
	LowWatermark         float64
	BatchSize            int
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Capacity <= 0 {
		c.Capacity = 100
	}
	if c.MemoryThresholdBytes <= 0 {
		c.MemoryThresholdBytes = 8 << 20 // 8 MiB of buffered chunk text
	}
	if c.LowWatermark <= 0 || c.LowWatermark >= 1 {
		c.LowWatermark = 0.5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	return c
}

func (c StreamConfig) lowWatermarkCount() int {
	return int(float64(c.Capacity) * c.LowWatermark)
}

// chunkBuffer is a bounded FIFO of chunks shared between a single
// producer (loading and chunking documents) and a single consumer
// (embedding batches), applying StreamConfig's hysteresis watermark
// policy and reporting every pause/resume and buffer-size sample to
// metrics.
type chunkBuffer struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []model.Chunk
	itemBytes uint64
	closed    bool
	aborted   bool

	cfg     StreamConfig
	metrics *metrics.PipelineMetrics
	paused  bool
}

func chunkBytes(c model.Chunk) uint64 {
	return uint64(len(c.Text))
}

func newChunkBuffer(ctx context.Context, cfg StreamConfig, m *metrics.PipelineMetrics) *chunkBuffer {
	b := &chunkBuffer{cfg: cfg, metrics: m}
	b.cond = sync.NewCond(&b.mu)
	go func() {
		<-ctx.Done()
		b.abort()
	}()
	return b
}

// push appends chunk. Once the buffer reaches capacity (by item count or
// by bytes) the caller blocks until the consumer has drained it down to
// the low watermark. It returns an error if ctx is cancelled or the buffer
// is aborted (a downstream consumer failure) while waiting.
func (b *chunkBuffer) push(ctx context.Context, chunk model.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for (b.paused || len(b.items) >= b.cfg.Capacity || b.itemBytes >= b.cfg.MemoryThresholdBytes) && !b.aborted {
		if !b.paused {
			b.paused = true
			if b.metrics != nil {
				b.metrics.RecordBackpressureApplied(len(b.items))
			}
		}
		b.cond.Wait()
	}
	if b.aborted {
		if err := ctx.Err(); err != nil {
			return ragerr.Wrap(ragerr.Cancelled, "operation cancelled", err)
		}
		return ragerr.New(ragerr.Cancelled, "stream ingest aborted")
	}

	b.items = append(b.items, chunk)
	b.itemBytes += chunkBytes(chunk)
	if b.metrics != nil {
		b.metrics.RecordConcurrency(len(b.items))
		b.metrics.RecordMemorySample(b.itemBytes, b.cfg.MemoryThresholdBytes)
	}
	b.cond.Broadcast()
	return nil
}

// closeProducer signals that no further chunks will be pushed; the
// consumer drains whatever remains and then sees an empty, closed buffer.
func (b *chunkBuffer) closeProducer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// abort unblocks both producer and consumer immediately, used when the
// other side has already failed and further buffering would deadlock.
func (b *chunkBuffer) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = true
	b.cond.Broadcast()
}

// drainBatch blocks until at least one chunk is available, the producer
// has closed with nothing left, or the buffer is aborted. It returns up
// to cfg.BatchSize chunks, or nil when there is nothing left to drain.
func (b *chunkBuffer) drainBatch() []model.Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && !b.closed && !b.aborted {
		b.cond.Wait()
	}
	if len(b.items) == 0 {
		return nil
	}

	n := b.cfg.BatchSize
	if n > len(b.items) {
		n = len(b.items)
	}
	batch := append([]model.Chunk(nil), b.items[:n]...)
	b.items = b.items[n:]
	for _, c := range batch {
		b.itemBytes -= chunkBytes(c)
	}

	if b.paused && len(b.items) <= b.cfg.lowWatermarkCount() {
		b.paused = false
		if b.metrics != nil {
			b.metrics.RecordBackpressureReleased()
		}
	}
	b.cond.Broadcast()
	return batch
}

// WithStreaming enables the streaming-embedding ingest path: chunks are
// produced and embedded concurrently through a bounded buffer instead of
// being fully materialized before embedding starts.
func WithStreaming(cfg StreamConfig) Option {
	return func(e *Executor) { e.streaming = &cfg }
}

func (e *Executor) streamIngest(ctx context.Context, sourcePath string, cfg StreamConfig) (model.IngestResult, error) {
	if sourcePath == "" {
		return model.IngestResult{}, ragerr.New(ragerr.InvalidInput, "sourcePath must be a non-empty string")
	}
	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	loader, err := e.loader()
	if err != nil {
		return model.IngestResult{}, err
	}
	embedder, err := e.embedder()
	if err != nil {
		return model.IngestResult{}, err
	}
	retriever, err := e.retriever()
	if err != nil {
		return model.IngestResult{}, err
	}

	var documents []model.Document
	err = e.stage(ctx, "loader.load", "stream-ingest.load", nil, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			docs, loadErr := loader.Load(ctx, sourcePath)
			if loadErr != nil {
				return ragerr.Wrap(ragerr.Transient, "loader failed", loadErr)
			}
			documents = docs
			return nil
		})
	})
	if err != nil {
		return model.IngestResult{}, err
	}
	if len(documents) == 0 {
		return model.IngestResult{}, ragerr.New(ragerr.LoadFailed, "loader produced no documents")
	}

	buf := newChunkBuffer(ctx, cfg, e.metrics)

	var producerErr error
	var produced int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer buf.closeProducer()
		for _, doc := range documents {
			chunks, chunkErr := e.chunkDocument(ctx, loader, doc)
			if chunkErr != nil {
				producerErr = chunkErr
				return
			}
			for _, c := range chunks {
				if pushErr := buf.push(ctx, c); pushErr != nil {
					producerErr = pushErr
					return
				}
				produced++
			}
		}
	}()

	var allChunks []model.Chunk
	var vectors []model.Vector
	var consumerErr error
	for {
		batch := buf.drainBatch()
		if batch == nil {
			break
		}
		vecs, embedErr := embedBatchForStream(ctx, embedder, batch)
		if embedErr != nil {
			consumerErr = embedErr
			buf.abort()
			break
		}
		allChunks = append(allChunks, batch...)
		vectors = append(vectors, vecs...)
	}
	wg.Wait()

	if consumerErr != nil {
		return model.IngestResult{}, consumerErr
	}
	if produced == 0 && producerErr == nil {
		return model.IngestResult{}, ragerr.New(ragerr.ChunkingFailed, "chunking produced zero chunks")
	}
	if producerErr != nil {
		return model.IngestResult{}, producerErr
	}
	if len(vectors) != produced {
		return model.IngestResult{}, ragerr.Newf(ragerr.EmbeddingMismatch,
			"embedder returned %d vectors for %d chunks", len(vectors), produced)
	}

	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	err = e.stage(ctx, "retriever.store", "stream-ingest.store", nil, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			if storeErr := retriever.Store(ctx, vectors, allChunks); storeErr != nil {
				return ragerr.Wrap(ragerr.Transient, "retriever store failed", storeErr)
			}
			return nil
		})
	})
	if err != nil {
		return model.IngestResult{}, err
	}

	return model.IngestResult{
		DocumentCount: len(documents),
		ChunkCount:    len(allChunks),
		VectorCount:   len(vectors),
	}, nil
}

func embedBatchForStream(ctx context.Context, embedder plugin.Embedder, batch []model.Chunk) ([]model.Vector, error) {
	vecs, err := embedder.Embed(ctx, batch)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transient, "embedder failed", err)
	}
	if len(vecs) != len(batch) {
		return nil, ragerr.Newf(ragerr.EmbeddingMismatch, "embedder returned %d vectors for %d chunks", len(vecs), len(batch))
	}
	return vecs, nil
}
