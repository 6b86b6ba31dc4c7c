package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

const (
	contractKey = "firmproof:contract_address"
	pendingKey  = "firmproof:pending_txs"
)

// Connect builds the redis client and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	l := log.WithFields(log.Fields{"package": "cache", "addr": addr})
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 10 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	l.Info("connected to redis")
	return client, nil
}

// Store keeps the user-set contract-address override and the parked
// submissions awaiting late confirmation. It implements both the settings
// Store and the ledger PendingStore ports.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store { return &Store{client: client} }

// ContractAddress returns the override, "" when unset.
func (s *Store) ContractAddress(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, contractKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) SetContractAddress(ctx context.Context, addr string) error {
	return s.client.Set(ctx, contractKey, addr, 0).Err()
}

func (s *Store) ClearContractAddress(ctx context.Context) error {
	return s.client.Del(ctx, contractKey).Err()
}

// Park stores a timed-out submission for the poller, keyed by tx hash.
func (s *Store) Park(ctx context.Context, p domain.PendingLog) error {
	jd, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, pendingKey, p.TxHash, jd).Err()
}

// List returns all parked submissions.
func (s *Store) List(ctx context.Context) ([]domain.PendingLog, error) {
	l := log.WithFields(log.Fields{"package": "cache", "func": "List"})
	vals, err := s.client.HGetAll(ctx, pendingKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingLog, 0, len(vals))
	for hash, jd := range vals {
		var p domain.PendingLog
		if err := json.Unmarshal([]byte(jd), &p); err != nil {
			l.WithField("tx", hash).WithError(err).Error("dropping undecodable pending entry")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Remove(ctx context.Context, txHash string) error {
	return s.client.HDel(ctx, pendingKey, txHash).Err()
}
