package graphstore

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/natsclient"
	"github.com/reosfire/xywire-sub000/pkg/retry"
)

// DefaultBucket is the KV bucket graphs are kept in
const DefaultBucket = "xywire_graphs"

// KVOptions configures a KVStore
type KVOptions struct {
	Bucket   string
	History  uint8
	Compress bool
	Logger   *slog.Logger
}

// KVStore keeps graph documents in a NATS KV bucket, one key per name
type KVStore struct {
	kv       *natsclient.KVStore
	compress bool
	logger   *slog.Logger
	// Save retries when another writer wins the revision race
	retry retry.Config
}

// NewKVStore opens or creates the bucket
func NewKVStore(ctx context.Context, client *natsclient.Client, opts KVOptions) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "KVStore", "NewKVStore", "check nats client")
	}
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}
	if opts.History == 0 {
		opts.History = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      opts.Bucket,
		Description: "xywire effect graphs",
		History:     opts.History,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create KV bucket")
	}

	return &KVStore{
		kv:       client.NewKVStore(bucket),
		compress: opts.Compress,
		logger:   logger.With("component", "graphstore", "store", "kv", "bucket", opts.Bucket),
		retry: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2,
			AddJitter:    true,
			Retryable:    natsclient.IsKVConflictError,
		},
	}, nil
}

func (s *KVStore) get(ctx context.Context, name string) (*Document, uint64, error) {
	entry, err := s.kv.Get(ctx, name)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, 0, errors.WrapInvalid(ErrNotFound, "KVStore", "Load", "find "+name)
		}
		return nil, 0, err
	}
	doc, err := decodePayload(entry.Value)
	if err != nil {
		return nil, 0, err
	}
	return doc, entry.Revision, nil
}

// Load reads the graph stored under name
func (s *KVStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	doc, _, err := s.get(ctx, name)
	return doc, err
}

// Save stores g under name. Concurrent saves are serialized through the
// KV revision; a writer that loses the race reloads and tries again.
func (s *KVStore) Save(ctx context.Context, name string, g *graph.Graph) (*Document, error) {
	if err := checkGraph("Save", name, g); err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, s.retry, func() (*Document, error) {
		prev, rev, err := s.get(ctx, name)
		if err != nil && !stderrors.Is(err, ErrNotFound) {
			return nil, err
		}
		doc := next(prev, name, g)
		if err := s.put(ctx, doc, rev); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// Update stores doc if its version matches the stored one
func (s *KVStore) Update(ctx context.Context, doc *Document) (*Document, error) {
	if err := checkDocument("Update", doc); err != nil {
		return nil, err
	}

	prev, rev, err := s.get(ctx, doc.Name)
	if err != nil {
		return nil, err
	}
	if prev.Version != doc.Version {
		return nil, conflict("Update", prev.Version, doc.Version)
	}
	updated := next(prev, doc.Name, doc.Graph)
	if err := s.put(ctx, updated, rev); err != nil {
		if natsclient.IsKVConflictError(err) {
			return nil, conflict("Update", prev.Version+1, doc.Version)
		}
		return nil, err
	}
	return updated, nil
}

// put creates the key when rev is 0 and otherwise updates revision rev
func (s *KVStore) put(ctx context.Context, doc *Document, rev uint64) error {
	data, err := encodePayload(doc, s.compress)
	if err != nil {
		return err
	}
	if rev == 0 {
		_, err = s.kv.Create(ctx, doc.Name, data)
	} else {
		_, err = s.kv.Update(ctx, doc.Name, data, rev)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("Graph saved", "name", doc.Name, "version", doc.Version, "bytes", len(data))
	return nil
}

// List returns the stored graph names, sorted
func (s *KVStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes name
func (s *KVStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, _, err := s.get(ctx, name); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, name); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(ErrNotFound, "KVStore", "Delete", "find "+name)
		}
		return err
	}
	return nil
}

// Watch streams every graph saved under name after the call. Deletes are
// skipped; undecodable values are logged and skipped.
func (s *KVStore) Watch(ctx context.Context, name string) (<-chan *graph.Graph, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	watcher, err := s.kv.Watch(ctx, name, jetstream.UpdatesOnly())
	if err != nil {
		return nil, err
	}

	out := make(chan *graph.Graph)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Stop(); err != nil {
				s.logger.Debug("Stopping watcher failed", "name", name, "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				doc, err := decodePayload(entry.Value())
				if err != nil {
					s.logger.Warn("Skipping undecodable graph update", "name", name, "revision", entry.Revision(), "error", err)
					continue
				}
				select {
				case out <- doc.Graph:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
