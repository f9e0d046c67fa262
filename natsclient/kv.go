package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/reosfire/xywire-sub000/errors"
)

// KV errors returned in place of the JetStream ones
var (
	ErrKVKeyNotFound      = stderrors.New("kv: key not found")
	ErrKVKeyExists        = stderrors.New("kv: key already exists")
	ErrKVRevisionMismatch = stderrors.New("kv: revision mismatch (concurrent update)")
)

// KVEntry is a value and the revision it was read at
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions tunes a KVStore
type KVOptions struct {
	Timeout      time.Duration // per call; Watch is exempt
	MaxValueSize int
}

// DefaultKVOptions returns the options NewKVStore starts from
func DefaultKVOptions() KVOptions {
	return KVOptions{Timeout: 5 * time.Second, MaxValueSize: 1 << 20}
}

// KVStore is a bucket with per-call timeouts and mapped errors. Writes are
// either Create (key must be absent) or Update (revision must match), so
// every write is a compare-and-set.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore wraps bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options, logger: c.logger.With("bucket", bucket.Bucket())}
}

// Bucket returns the bucket name
func (kv *KVStore) Bucket() string { return kv.bucket.Bucket() }

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, kv.options.Timeout)
}

// mapErr turns a JetStream failure into one of the KV sentinels, or a
// transient error when it is neither a conflict nor a missing key
func mapErr(err error, op, key string) error {
	switch {
	case err == nil:
		return nil
	case IsKVNotFoundError(err):
		return ErrKVKeyNotFound
	case IsKVConflictError(err) && op == "Create":
		return ErrKVKeyExists
	case IsKVConflictError(err):
		return ErrKVRevisionMismatch
	}
	return errors.WrapTransient(err, "KVStore", op, strings.ToLower(op)+" "+key)
}

// Get returns the current value of key
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		return nil, mapErr(err, "Get", key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Create writes key only if it does not exist
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return kv.write(ctx, "Create", key, value, func(ctx context.Context) (uint64, error) {
		return kv.bucket.Create(ctx, key, value)
	})
}

// Update writes key only if its current revision is revision
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	return kv.write(ctx, "Update", key, value, func(ctx context.Context) (uint64, error) {
		return kv.bucket.Update(ctx, key, value, revision)
	})
}

func (kv *KVStore) write(
	ctx context.Context,
	op, key string,
	value []byte,
	do func(context.Context) (uint64, error),
) (uint64, error) {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", op, key+" exceeds max value size")
	}
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := do(ctx)
	if err != nil {
		return 0, mapErr(err, op, key)
	}
	kv.logger.Debug("KV write", "op", op, "key", key, "revision", rev, "bytes", len(value))
	return rev, nil
}

// Delete removes key
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		return mapErr(err, "Delete", key)
	}
	kv.logger.Debug("KV delete", "key", key)
	return nil
}

// Keys lists live keys. An empty bucket is not an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	switch {
	case stderrors.Is(err, jetstream.ErrNoKeysFound):
		return []string{}, nil
	case err != nil:
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
	}
	return keys, nil
}

// Watch watches keys matching pattern until ctx ends or the watcher is
// stopped
func (kv *KVStore) Watch(ctx context.Context, pattern string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	w, err := kv.bucket.Watch(ctx, pattern, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Watch", "watch "+pattern)
	}
	return w, nil
}

// IsKVNotFoundError reports whether err means the key is missing or deleted
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{ErrKVKeyNotFound, jetstream.ErrKeyNotFound, jetstream.ErrKeyDeleted} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return containsAny(err.Error(), "key not found", "10037")
}

// IsKVConflictError reports whether err means the key exists or the
// revision is stale
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{ErrKVRevisionMismatch, ErrKVKeyExists, jetstream.ErrKeyExists} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return containsAny(err.Error(), "wrong last sequence", "key exists", "10071", "10058")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
