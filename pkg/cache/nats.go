package cache

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/ciboard/errors"
)

// natsStore keeps entries in a JetStream key-value bucket. The bucket TTL
// expires entries server-side.
type natsStore struct {
	conn    *nats.Conn
	bucket  jetstream.KeyValue
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSStore connects to NATS and creates or updates the bucket
func NewNATSStore(ctx context.Context, cfg NATSConfig, ttl time.Duration, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache", "backend", "nats")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("ciboard-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewNATSStore", "connect to NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapTransient(err, "cache", "NewNATSStore", "create JetStream context")
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "ciboard upstream lookup cache",
		TTL:         ttl,
		Replicas:    cfg.Replicas,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		conn.Close()
		return nil, errors.WrapTransient(err, "cache", "NewNATSStore", fmt.Sprintf("create bucket %s", cfg.Bucket))
	}

	logger.Info("Using NATS KV cache", "bucket", cfg.Bucket, "ttl", ttl)
	return &natsStore{conn: conn, bucket: bucket, timeout: cfg.Timeout(), logger: logger}, nil
}

// kvKey encodes arbitrary cache keys into the KV key alphabet
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *natsStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry, err := s.bucket.Get(ctx, kvKey(key))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.WrapTransient(err, "cache", "Get", "kv get")
	}
	return entry.Value(), true, nil
}

func (s *natsStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.bucket.Put(ctx, kvKey(key), value); err != nil {
		return errors.WrapTransient(err, "cache", "Put", "kv put")
	}
	return nil
}

func (s *natsStore) Close() error {
	return s.conn.Drain()
}
