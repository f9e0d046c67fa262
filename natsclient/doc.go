// Package natsclient wraps a NATS connection with lifecycle tracking,
// JetStream access and KV bucket helpers. xywire uses it to persist graph
// documents in a KV bucket, to watch those documents for hot reload and to
// publish deploy reports.
//
// Connection lifecycle: Disconnected → Connecting → Connected, with
// Reconnecting while the underlying nats.Conn recovers. Status changes are
// mirrored into the core metrics when WithCoreMetrics is set.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("xywire"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "xywire_graphs"})
//	kv := client.NewKVStore(bucket)
//
// KVStore maps the raw JetStream KV errors onto ErrKVKeyNotFound,
// ErrKVKeyExists and ErrKVRevisionMismatch so callers can implement
// optimistic concurrency with errors.Is.
//
// Tests that need a real server use NewTestClient, which starts NATS in a
// testcontainer and closes it through t.Cleanup.
package natsclient
