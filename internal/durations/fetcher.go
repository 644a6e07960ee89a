package durations

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/types"
)

// Fetcher tuning.
const (
	// DefaultWorkerCount is how many probes run concurrently.
	DefaultWorkerCount = 2
	// maxWorkerCount caps configured worker counts.
	maxWorkerCount = 8
	// DefaultFetchDelay is the rate-limit pause after each probe, to
	// stay polite toward remote hosts.
	DefaultFetchDelay = 300 * time.Millisecond
)

// request is one queued probe.
type request struct {
	item     types.PlaylistItem
	priority types.FetchPriority
	seq      uint64 // enqueue order, newer first within a priority class
}

// requestHeap orders by priority, then newer-first. Implements
// container/heap.
type requestHeap []request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq > h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Result is the outcome of one duration fetch.
type Result struct {
	Item     types.PlaylistItem `json:"item"`
	Duration int                `json:"duration,omitempty"`
	Source   string             `json:"source,omitempty"`
	Err      error              `json:"-"`
	Error    string             `json:"error,omitempty"`
}

// FetchStats counts fetch outcomes.
type FetchStats struct {
	Queued    int        `json:"queued"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	CacheHits int        `json:"cache_hits"`
	QueueSize int        `json:"queue_size"`
	Cache     CacheStats `json:"cache"`
}

// Fetcher resolves playlist item durations on a background worker pool.
// Urgent requests jump the queue; results come back on a buffered
// channel the engine drains. Safe for concurrent use.
type Fetcher struct {
	cache   *Cache
	prober  Prober
	results chan Result

	workerCount int
	fetchDelay  time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	queue   requestHeap
	seq     uint64
	running bool
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	queued, completed, failed, cacheHits int
}

// NewFetcher creates a fetcher over the given cache and prober. Workers
// start lazily on the first enqueue.
func NewFetcher(cache *Cache, prober Prober, workerCount int) *Fetcher {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if workerCount > maxWorkerCount {
		workerCount = maxWorkerCount
	}
	f := &Fetcher{
		cache:       cache,
		prober:      prober,
		results:     make(chan Result, 64),
		workerCount: workerCount,
		fetchDelay:  DefaultFetchDelay,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Results returns the outcome channel. Never closed.
func (f *Fetcher) Results() <-chan Result {
	return f.results
}

// Enqueue queues items for duration resolution. Items that already have
// a duration, lack a URL or are of an unsupported kind are skipped;
// cached items resolve immediately without touching the queue.
func (f *Fetcher) Enqueue(items []types.PlaylistItem, priority types.FetchPriority) {
	for _, item := range items {
		if item.DurationSeconds > 0 || item.URL == "" {
			continue
		}
		switch item.Kind {
		case types.KindLocal, types.KindYouTube, types.KindBilibili:
		default:
			continue
		}

		if seconds, ok := f.cache.Get(item.URL); ok {
			f.mu.Lock()
			f.cacheHits++
			f.mu.Unlock()
			f.deliver(Result{Item: item, Duration: seconds, Source: "cache"})
			continue
		}

		f.mu.Lock()
		if f.stopped {
			f.mu.Unlock()
			return
		}
		f.startWorkersLocked()
		f.seq++
		heap.Push(&f.queue, request{item: item, priority: priority, seq: f.seq})
		f.queued++
		f.mu.Unlock()
		f.cond.Signal()
	}
}

// EnqueueOne queues a single item at the given priority.
func (f *Fetcher) EnqueueOne(item types.PlaylistItem, priority types.FetchPriority) {
	f.Enqueue([]types.PlaylistItem{item}, priority)
}

// Stats returns a snapshot of fetch and cache statistics.
func (f *Fetcher) Stats() FetchStats {
	f.mu.Lock()
	s := FetchStats{
		Queued:    f.queued,
		Completed: f.completed,
		Failed:    f.failed,
		CacheHits: f.cacheHits,
		QueueSize: len(f.queue),
	}
	f.mu.Unlock()
	s.Cache = f.cache.Stats()
	return s
}

// Stop drains nothing further: workers finish their current probe, the
// remaining queue is abandoned and the cache is persisted. Idempotent.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	f.cond.Broadcast()
	f.wg.Wait()

	if err := f.cache.Save(); err != nil {
		slog.Warn("failed to save duration cache on stop", "error", err)
	}
}

func (f *Fetcher) startWorkersLocked() {
	if f.running {
		return
	}
	f.running = true
	f.ctx, f.cancel = context.WithCancel(context.Background())
	for i := 0; i < f.workerCount; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	slog.Info("duration fetch workers started", "count", f.workerCount)
}

func (f *Fetcher) worker(id int) {
	defer f.wg.Done()
	for {
		req, ok := f.next()
		if !ok {
			return
		}

		seconds, source, err := f.prober.Probe(f.ctx, req.item)

		f.mu.Lock()
		if err != nil {
			f.failed++
		} else {
			f.completed++
		}
		f.mu.Unlock()

		if err != nil {
			slog.Debug("duration probe failed",
				"worker", id, "url", req.item.URL, "error", err)
			f.deliver(Result{Item: req.item, Err: err, Error: err.Error()})
		} else {
			f.cache.Set(req.item.URL, seconds, source)
			f.deliver(Result{Item: req.item, Duration: seconds, Source: source})
		}

		if f.fetchDelay > 0 {
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(f.fetchDelay):
			}
		}
	}
}

// next blocks until a request is available or the fetcher stops.
func (f *Fetcher) next() (request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.stopped {
		f.cond.Wait()
	}
	if f.stopped {
		return request{}, false
	}
	return heap.Pop(&f.queue).(request), true
}

// deliver pushes a result without blocking a worker on a slow consumer.
func (f *Fetcher) deliver(res Result) {
	select {
	case f.results <- res:
	default:
		slog.Warn("duration result dropped, consumer not keeping up", "url", res.Item.URL)
	}
}
