package tier

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rungalileo/gcache/cache"
)

// WatermarkTTL is the lifetime of an invalidation watermark entry. It
// must exceed any invalidatable use case's remote TTL or invalidation
// silently stops working once the watermark expires first. Matches
// WATERMARK_TTL_SECONDS (4 hours) in constants.py.
const WatermarkTTL = 4 * time.Hour

// msgpackCodec is the fallback Codec used when a Key carries none. It
// round-trips through msgpack.Marshal/Unmarshal into a generic any,
// which loses concrete struct types on the way back out (decode
// produces maps, not structs) — callers that need a typed result (every
// engine.Cached[A, R] registration) attach a type-aware cache.Codec
// built from R to the Key instead.
type msgpackCodec struct{}

func (msgpackCodec) Encode(value any) ([]byte, error) { return msgpack.Marshal(value) }
func (msgpackCodec) Decode(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DefaultCodec is the fallback cache.Codec used when a Key carries none.
var DefaultCodec cache.Codec = msgpackCodec{}

// envelope wraps a cached payload with the timestamp it was written at,
// so a later watermark can be compared against it. Grounded on
// RedisValue in _internal/redis_cache.py.
type envelope struct {
	CreatedAtMs int64  `msgpack:"created_at_ms"`
	Payload     []byte `msgpack:"payload"`
}

// AsyncDecodeThresholdBytes is the envelope size above which decoding is
// handed off to a decodeExecutor worker instead of running inline on the
// calling goroutine. Matches ASYNC_PICKLE_THRESHOLD_BYTES (50,000) in
// constants.py.
const AsyncDecodeThresholdBytes = 50_000

type decodeTask struct {
	raw    []byte
	result chan decodeResult
}

type decodeResult struct {
	env envelope
	err error
}

// decodeExecutor off-loads large envelope decodes onto a small fixed
// pool of goroutines. It is the Go analogue of RedisCache._executor (a
// ThreadPoolExecutor) combined with _async_pickle_loads's
// loop.run_in_executor hand-off: the original moves a big pickle.loads
// call onto a worker thread so the asyncio event loop thread isn't
// stalled decoding a large payload. Go goroutines don't share that
// single-event-loop hazard, but the hand-off is still worth preserving
// as the suspension point spec.md §5 names: decode runs on a pool
// worker so the calling goroutine can observe context cancellation
// instead of being committed to the full decode once it starts.
type decodeExecutor struct {
	tasks chan decodeTask
}

// newDecodeExecutor starts workers goroutines draining tasks. workers
// <= 0 picks min(32, runtime.NumCPU()+4), the same formula
// concurrent.futures.ThreadPoolExecutor uses for its default max_workers.
func newDecodeExecutor(workers int) *decodeExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU() + 4
		if workers > 32 {
			workers = 32
		}
	}
	e := &decodeExecutor{tasks: make(chan decodeTask)}
	for i := 0; i < workers; i++ {
		go e.run()
	}
	return e
}

func (e *decodeExecutor) run() {
	for t := range e.tasks {
		var env envelope
		err := msgpack.Unmarshal(t.raw, &env)
		t.result <- decodeResult{env: env, err: err}
	}
}

// decode deserializes raw inline when it's at or under
// AsyncDecodeThresholdBytes, otherwise hands it to the worker pool and
// waits for either the result or ctx to be canceled.
func (e *decodeExecutor) decode(ctx context.Context, raw []byte) (envelope, error) {
	if len(raw) <= AsyncDecodeThresholdBytes {
		var env envelope
		err := msgpack.Unmarshal(raw, &env)
		return env, err
	}

	task := decodeTask{raw: raw, result: make(chan decodeResult, 1)}
	select {
	case e.tasks <- task:
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}

	select {
	case res := <-task.result:
		return res.env, res.err
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}
}

// RemoteTier is the shared, Redis-backed layer that supports
// cross-process invalidation via watermarks. Grounded on
// _internal/redis_cache.py's RedisCache.
type RemoteTier struct {
	client         *redis.Client
	configProvider cache.ConfigProvider
	urnPrefix      string
	metrics        *Metrics
	watermarkTTL   time.Duration
	decode         *decodeExecutor
}

// NewRemoteTier constructs a RemoteTier over an already-connected
// client. urnPrefix must match the KeyBuilder's prefix so watermark keys
// address the same namespace as value keys.
func NewRemoteTier(client *redis.Client, provider cache.ConfigProvider, urnPrefix string, metrics *Metrics) *RemoteTier {
	return &RemoteTier{
		client:         client,
		configProvider: provider,
		urnPrefix:      urnPrefix,
		metrics:        metrics,
		watermarkTTL:   WatermarkTTL,
		decode:         newDecodeExecutor(0),
	}
}

func codecFor(key cache.Key) cache.Codec {
	if key.Codec != nil {
		return key.Codec
	}
	return DefaultCodec
}

func (t *RemoteTier) resolveConfig(ctx context.Context, key cache.Key) (*cache.KeyConfig, error) {
	cfg, err := t.configProvider(ctx, key)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = key.DefaultConfig
	}
	return cfg, nil
}

func (t *RemoteTier) Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error) {
	var raw []byte
	var watermarkMs *int64

	if key.InvalidationTracking {
		res, err := t.client.MGet(ctx, key.URN, key.WatermarkKey()).Result()
		if err != nil {
			return nil, err
		}
		if len(res) > 0 && res[0] != nil {
			if s, ok := res[0].(string); ok {
				raw = []byte(s)
			}
		}
		if len(res) > 1 && res[1] != nil {
			if s, ok := res[1].(string); ok {
				var ms int64
				if _, scanErr := fmt.Sscanf(s, "%d", &ms); scanErr == nil {
					watermarkMs = &ms
				}
			}
		}
	} else {
		s, err := t.client.Get(ctx, key.URN).Result()
		switch {
		case err == redis.Nil:
			raw = nil
		case err != nil:
			return nil, err
		default:
			raw = []byte(s)
		}
	}

	if raw == nil {
		return t.execFallback(ctx, key, watermarkMs, fallback)
	}

	start := time.Now()
	env, err := t.decode.decode(ctx, raw)
	if err != nil {
		return nil, cache.ErrKeyConstructionFailed(err)
	}
	if t.metrics != nil {
		t.metrics.SerializeTimer.WithLabelValues(key.UseCase, key.KeyType, cache.LayerRemote.String(), "load").Observe(time.Since(start).Seconds())
	}

	if watermarkMs != nil && *watermarkMs >= env.CreatedAtMs {
		return t.execFallback(ctx, key, watermarkMs, fallback)
	}

	return codecFor(key).Decode(env.Payload)
}

// execFallback runs fallback and writes the result back unless an
// invalidation watermark is still pending in the future: writing back
// while an invalidation window hasn't closed would cache a value that
// may have been read before the write it's supposed to reflect, the
// stale-read-over-pending-write hazard the original implementation
// guards against in _exec_fallback.
func (t *RemoteTier) execFallback(ctx context.Context, key cache.Key, watermarkMs *int64, fallback Fallback) (any, error) {
	val, err := fallback(ctx)
	if err != nil {
		return nil, err
	}
	nowMs := time.Now().UnixMilli()
	if watermarkMs == nil || *watermarkMs < nowMs {
		if err := t.Put(ctx, key, val); err != nil {
			return nil, err
		}
	}
	return val, nil
}

func (t *RemoteTier) Put(ctx context.Context, key cache.Key, value any) error {
	cfg, err := t.resolveConfig(ctx, key)
	if err != nil {
		return err
	}
	if cfg == nil {
		return cache.ErrMissingKeyConfig(key.UseCase)
	}
	ttl, ok := cfg.TTL(cache.LayerRemote)
	if !ok {
		return cache.ErrMissingKeyConfig(key.UseCase)
	}

	start := time.Now()
	payload, err := codecFor(key).Encode(value)
	if err != nil {
		return cache.ErrKeyConstructionFailed(err)
	}

	data, err := msgpack.Marshal(envelope{CreatedAtMs: time.Now().UnixMilli(), Payload: payload})
	if err != nil {
		return cache.ErrKeyConstructionFailed(err)
	}

	if t.metrics != nil {
		layer := cache.LayerRemote.String()
		t.metrics.SerializeTimer.WithLabelValues(key.UseCase, key.KeyType, layer, "dump").Observe(time.Since(start).Seconds())
		t.metrics.SizeHistogram.WithLabelValues(key.UseCase, key.KeyType, layer).Observe(float64(len(data)))
	}

	return t.client.Set(ctx, key.URN, data, ttl).Err()
}

func (t *RemoteTier) Delete(ctx context.Context, key cache.Key) (bool, error) {
	n, err := t.client.Del(ctx, key.URN).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Invalidate stamps a watermark for (keyType, id): any value cached at
// or before now+futureBufferMs will be treated as stale on next read.
// Grounded on RedisCache.invalidate.
func (t *RemoteTier) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	if t.metrics != nil {
		t.metrics.Invalidation.WithLabelValues(keyType, cache.LayerRemote.String()).Inc()
	}
	prefix := keyType + ":" + id
	if t.urnPrefix != "" {
		prefix = t.urnPrefix + ":" + prefix
	}
	key := "{" + prefix + "}#watermark"
	expMs := time.Now().UnixMilli() + futureBufferMs
	return t.client.Set(ctx, key, expMs, t.watermarkTTL).Err()
}

func (t *RemoteTier) Layer() cache.Layer {
	return cache.LayerRemote
}

func (t *RemoteTier) FlushAll(ctx context.Context) error {
	return t.client.FlushAll(ctx).Err()
}
