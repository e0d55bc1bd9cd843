package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// popDue atomically removes up to ARGV[2] members with score <= ARGV[1]
// from the schedule set and returns them interleaved with their bodies.
var popDue = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local body = redis.call('HGET', KEYS[2], id)
  redis.call('HDEL', KEYS[2], id)
  if body then
    table.insert(out, id)
    table.insert(out, body)
  end
end
return out
`)

// Delayed is a Redis backed delay queue.  Job ids live in a sorted set
// scored by their fire time in unix milliseconds; bodies live in a hash.
type Delayed struct {
	rdb      *redis.Client
	setKey   string
	bodyKey  string
	sink     Handler
	interval time.Duration
	batch    int
	retry    time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// DelayedOptions tunes the poller.
type DelayedOptions struct {
	Prefix       string        // key prefix, default "dispatch"
	PollInterval time.Duration // default one second
	Batch        int           // max jobs popped per tick, default 100
	// RetryDelay puts a job whose sink failed back into the set that far
	// in the future.  Zero drops it after logging.
	RetryDelay time.Duration
}

// NewDelayed returns a queue whose due jobs are passed to sink.
func NewDelayed(rdb *redis.Client, sink Handler, log *zap.Logger, opts DelayedOptions) *Delayed {
	if opts.Prefix == "" {
		opts.Prefix = "dispatch"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Delayed{
		rdb:      rdb,
		setKey:   opts.Prefix + ":schedule",
		bodyKey:  opts.Prefix + ":jobs",
		sink:     sink,
		interval: opts.PollInterval,
		batch:    opts.Batch,
		retry:    opts.RetryDelay,
		log:      log,
		now:      time.Now,
	}
}

// Enqueue stores the job unless one with the same id is already pending.
func (d *Delayed) Enqueue(ctx context.Context, id string, body []byte, notBefore time.Time) error {
	_, err := d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddNX(ctx, d.setKey, redis.Z{Score: float64(notBefore.UnixMilli()), Member: id})
		p.HSetNX(ctx, d.bodyKey, id, body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Pending returns the number of jobs waiting for their fire time.
func (d *Delayed) Pending(ctx context.Context) (int64, error) {
	return d.rdb.ZCard(ctx, d.setKey).Result()
}

// Run polls for due jobs until ctx is cancelled.
func (d *Delayed) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		if _, err := d.Poll(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("delayed queue poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll pops every job due now and hands it to the sink.  It returns the
// number of jobs popped, including any put back for a retry.
func (d *Delayed) Poll(ctx context.Context) (int, error) {
	total := 0
	for {
		cutoff := strconv.FormatInt(d.now().UnixMilli(), 10)
		res, err := popDue.Run(ctx, d.rdb, []string{d.setKey, d.bodyKey}, cutoff, d.batch).StringSlice()
		if err != nil {
			return total, fmt.Errorf("pop due jobs: %w", err)
		}
		for i := 0; i+1 < len(res); i += 2 {
			id, body := res[i], res[i+1]
			if err := d.sink(ctx, []byte(body)); err != nil {
				d.requeue(ctx, id, body, err)
			}
		}
		n := len(res) / 2
		total += n
		if n < d.batch {
			return total, nil
		}
	}
}

// requeue puts a job back after its sink failed.  A job enqueued again
// under the same id in the meantime wins.
func (d *Delayed) requeue(ctx context.Context, id, body string, cause error) {
	if d.retry <= 0 {
		d.log.Error("forward due job", zap.String("job_id", id), zap.Error(cause))
		return
	}
	at := d.now().Add(d.retry)
	if err := d.Enqueue(ctx, id, []byte(body), at); err != nil {
		d.log.Error("forward due job, requeue failed",
			zap.String("job_id", id), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	d.log.Warn("forward due job failed, requeued",
		zap.String("job_id", id), zap.Time("retry_at", at), zap.Error(cause))
}
