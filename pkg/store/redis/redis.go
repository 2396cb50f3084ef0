// Package redis stores engine snapshots in Redis as JSON documents.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

const storeName = "redis"

// StateStore keeps one JSON snapshot per symbol under <prefix>:state:<symbol>.
type StateStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *logging.Logger
}

var _ store.StateStore = (*StateStore)(nil)

// Options configures a StateStore.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options, logger *logging.Logger) (*StateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	s := NewWithClient(client, opts.KeyPrefix, opts.Timeout, logger)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, timeout time.Duration, logger *logging.Logger) *StateStore {
	if prefix == "" {
		prefix = "oracle"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &StateStore{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger.With("store", storeName),
	}
}

// Ping checks the connection to the Redis server.
func (s *StateStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *StateStore) key(symbol string) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, symbol)
}

// Load reads the snapshot for symbol.
func (s *StateStore) Load(ctx context.Context, symbol string) (engine.State, bool, error) {
	if symbol == "" {
		return engine.State{}, false, store.ErrSymbolRequired
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.State{}, false, nil
	}
	if err != nil {
		metrics.RecordStoreError(storeName, "load")
		return engine.State{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		metrics.RecordStoreError(storeName, "decode")
		return engine.State{}, false, fmt.Errorf("decode state %s: %w", symbol, err)
	}
	return st, true, nil
}

// Save overwrites the snapshot for symbol.
func (s *StateStore) Save(ctx context.Context, symbol string, state engine.State) error {
	if symbol == "" {
		return store.ErrSymbolRequired
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", symbol, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(symbol), data, 0).Err(); err != nil {
		metrics.RecordStoreError(storeName, "save")
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	s.logger.Debug("State saved", "symbol", symbol, "bytes", len(data))
	return nil
}

// Close closes the underlying client.
func (s *StateStore) Close() error {
	return s.client.Close()
}
