// Package pipeline schedules embedding work across a fixed pool of
// concurrent "slots," each a bounded-channel consumer talking to a single
// internal/provider.Embedder. It generalizes the teacher's
// ParallelEmbedChunks semaphore pattern into an explicit
// producer/consumer state machine with per-slot retry/backoff.
package pipeline

import (
	"context"
	"sync"
	"time"

	"codesearch/internal/model"
	"codesearch/internal/provider"
)

// DefaultSlots is the number of concurrent in-flight provider calls used
// everywhere this package is wired in; there is no separate display-only
// concurrency knob.
const DefaultSlots = 5

const (
	defaultBatchSize      = 32
	defaultCoolDown       = 200 * time.Millisecond
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	defaultMaxAttempts    = 10
)

// Item is one unit of embedding work: a piece of text addressed by its
// content hash, plus the file it came from for failure reporting.
type Item struct {
	ContentHash string
	Text        string
	FilePath    string
}

// Failure records a batch that exhausted its retry budget.
type Failure struct {
	BatchIndex int
	Files      []string
	ChunkCount int
	Err        error
	Timestamp  time.Time
}

// Stats summarizes a pipeline run.
type Stats struct {
	TotalItems int
	Embedded   int
	Failed     int
	Failures   []Failure
}

// Config configures a Pipeline. Zero values fall back to the defaults
// named above.
type Config struct {
	Slots           int
	BatchSize       int
	CoolDown        time.Duration
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	MaxAttempts     int
}

// Option mutates a Config.
type Option func(*Config)

func WithSlots(n int) Option     { return func(c *Config) { c.Slots = n } }
func WithBatchSize(n int) Option { return func(c *Config) { c.BatchSize = n } }
func WithCoolDown(d time.Duration) Option {
	return func(c *Config) { c.CoolDown = d }
}
func WithBackoff(initial, max time.Duration, maxAttempts int) Option {
	return func(c *Config) {
		c.InitialBackoff = initial
		c.MaxBackoff = max
		c.MaxAttempts = maxAttempts
	}
}

// Pipeline embeds batches of text through a fixed slot pool.
type Pipeline struct {
	embedder provider.Embedder
	cfg      Config
}

// New builds a Pipeline over the given embedder.
func New(embedder provider.Embedder, opts ...Option) *Pipeline {
	cfg := Config{
		Slots:          DefaultSlots,
		BatchSize:      defaultBatchSize,
		CoolDown:       defaultCoolDown,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		MaxAttempts:    defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Pipeline{embedder: embedder, cfg: cfg}
}

type batchJob struct {
	index int
	items []Item
}

// Run embeds every item, returning a map from content hash to vector and
// a Stats describing what succeeded, what failed, and why. Run blocks
// until the producer has enumerated all items and every slot has drained
// the channel, or ctx is cancelled, in which case no new batches are
// started but in-flight provider calls are allowed to finish.
func (p *Pipeline) Run(ctx context.Context, items []Item) (map[string][]float32, *Stats, error) {
	stats := &Stats{TotalItems: len(items)}
	vectors := make(map[string][]float32, len(items))
	if len(items) == 0 {
		return vectors, stats, nil
	}

	batches := splitBatches(items, p.cfg.BatchSize)

	jobs := make(chan batchJob, p.cfg.Slots)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for slot := 0; slot < p.cfg.Slots; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result, err := p.embedBatchWithBackoff(ctx, job.items)
				mu.Lock()
				if err != nil {
					files := filesOf(job.items)
					stats.Failed += len(job.items)
					stats.Failures = append(stats.Failures, Failure{
						BatchIndex: job.index,
						Files:      files,
						ChunkCount: len(job.items),
						Err:        err,
						Timestamp:  time.Now(),
					})
				} else {
					for hash, vec := range result {
						vectors[hash] = vec
					}
					stats.Embedded += len(result)
				}
				mu.Unlock()

				if err == nil {
					select {
					case <-ctx.Done():
					case <-time.After(p.cfg.CoolDown):
					}
				}
			}
		}()
	}

producer:
	for i, batch := range batches {
		select {
		case <-ctx.Done():
			break producer
		case jobs <- batchJob{index: i, items: batch}:
		}
	}
	close(jobs)

	wg.Wait()

	return vectors, stats, ctx.Err()
}

// embedBatchWithBackoff invokes the embedder, retrying retriable errors
// with exponential backoff up to MaxAttempts.
func (p *Pipeline) embedBatchWithBackoff(ctx context.Context, items []Item) (map[string][]float32, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}

	backoff := p.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		vecs, err := p.embedder.Embed(ctx, texts)
		if err == nil {
			result := make(map[string][]float32, len(items))
			for i, it := range items {
				if i < len(vecs) {
					result[it.ContentHash] = vecs[i]
				}
			}
			return result, nil
		}

		lastErr = err
		kind, ok := model.KindOf(err)
		if !ok || !kind.Retriable() {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	return nil, lastErr
}

func splitBatches(items []Item, size int) [][]Item {
	var batches [][]Item
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func filesOf(items []Item) []string {
	seen := make(map[string]bool, len(items))
	var files []string
	for _, it := range items {
		if it.FilePath == "" || seen[it.FilePath] {
			continue
		}
		seen[it.FilePath] = true
		files = append(files, it.FilePath)
	}
	return files
}
