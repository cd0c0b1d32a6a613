package kafka

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// Retry policy for a failing handler before the message is skipped.
const (
	maxAttempts  = 5
	retryBackoff = 200 * time.Millisecond
)

// Consumer fans messages out to workers by message key, so all events of
// one order are handled in order by the same worker. Offsets are committed
// per partition only up to the oldest message still in flight.
type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

type partition struct {
	topic string
	id    int
}

type inflight struct {
	m    kafka.Message
	done bool
}

// offsetTracker remembers fetched messages per partition in fetch order.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[partition][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: make(map[partition][]*inflight)}
}

func (t *offsetTracker) track(m kafka.Message) *inflight {
	f := &inflight{m: m}
	p := partition{m.Topic, m.Partition}
	t.mu.Lock()
	t.pending[p] = append(t.pending[p], f)
	t.mu.Unlock()
	return f
}

// complete marks f handled and calls commit with the newest message of the
// handled prefix, if the prefix grew. commit runs under the tracker lock so
// commits of one consumer never go backwards.
func (t *offsetTracker) complete(f *inflight, commit func(kafka.Message)) {
	p := partition{f.m.Topic, f.m.Partition}
	t.mu.Lock()
	defer t.mu.Unlock()
	f.done = true
	q := t.pending[p]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return
	}
	last := q[n-1].m
	t.pending[p] = q[n:]
	commit(last)
}

func shardOf(key []byte, n int) int {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

// Start blocks until ctx is done or the reader fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)
	offsets := newOffsetTracker()
	shards := make([]chan *inflight, c.workers)
	for i := range shards {
		shards[i] = make(chan *inflight, 64)
		in := shards[i]
		i := i
		g.Go(func() error {
			for f := range in {
				if !c.handle(gctx, i, h, f.m) {
					continue // shutdown: jangan commit, pesan akan dikirim ulang
				}
				offsets.complete(f, func(m kafka.Message) {
					if err := c.r.CommitMessages(gctx, m); err != nil && gctx.Err() == nil {
						c.log.Error("commit failed", zap.String("topic", m.Topic),
							zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
					}
				})
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				// kecilkan noise saat shutdown
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case shards[shardOf(m.Key, c.workers)] <- offsets.track(m):
			case <-gctx.Done():
				return nil
			}
		}
	})
	return g.Wait()
}

// handle retries h with linear backoff; a message that keeps failing is
// logged and given up on so the partition does not stall. It reports false
// only when ctx ended before the message was finished.
func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) bool {
	fields := []zap.Field{zap.Int("worker", worker), zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset)}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = h(ctx, m); err == nil {
			return true
		}
		c.log.Warn("handler failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	c.log.Error("giving up on message", append(fields, zap.Error(err))...)
	return true
}
