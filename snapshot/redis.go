package snapshot

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edwinsyarief/kiroku/encoding"
)

// Store persists snapshots.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	List(ctx context.Context) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ Store = (*RedisStore)(nil)

const defaultPrefix = "kiroku"

const (
	fieldFormat    = "format"
	fieldEntities  = "entities"
	fieldChecksum  = "checksum"
	fieldCreatedAt = "created_at"
	fieldData      = "data"
)

// RedisStore keeps each snapshot in a hash and indexes all of them in a sorted
// set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. The default is "kiroku".
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// WithTTL expires snapshot hashes after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStore) { r.ttl = ttl }
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(logger zerolog.Logger) RedisOption {
	return func(r *RedisStore) { r.log = logger }
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client, prefix: defaultPrefix, log: log.Logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) snapshotKey(id uuid.UUID) string {
	return r.prefix + ":snapshot:" + id.String()
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":snapshots"
}

// Save writes s and adds it to the index in one transaction.
func (r *RedisStore) Save(ctx context.Context, s *Snapshot) error {
	key := r.snapshotKey(s.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldFormat:    string(s.Format),
			fieldEntities:  s.Entities,
			fieldChecksum:  strconv.FormatUint(s.Checksum, 16),
			fieldCreatedAt: s.CreatedAt.UnixNano(),
			fieldData:      s.Data,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(s.CreatedAt.UnixMilli()),
			Member: s.ID.String(),
		})
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "failed to save snapshot %s", s.ID)
	}
	r.log.Debug().
		Str("snapshot", s.ID.String()).
		Str("format", string(s.Format)).
		Int("bytes", len(s.Data)).
		Msg("saved snapshot")
	return nil
}

// Load reads and verifies a snapshot.
func (r *RedisStore) Load(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, r.snapshotKey(id)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load snapshot %s", id)
	}
	if len(fields) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	s, err := decodeFields(id, fields)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeFields(id uuid.UUID, fields map[string]string) (*Snapshot, error) {
	format, err := encoding.ParseFormat(fields[fieldFormat])
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot %s", id)
	}
	entities, err := strconv.Atoi(fields[fieldEntities])
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot %s: bad entity count", id)
	}
	checksum, err := strconv.ParseUint(fields[fieldChecksum], 16, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot %s: bad checksum", id)
	}
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot %s: bad creation time", id)
	}
	return &Snapshot{
		ID:        id,
		Format:    format,
		Entities:  entities,
		Checksum:  checksum,
		CreatedAt: time.Unix(0, created).UTC(),
		Data:      []byte(fields[fieldData]),
	}, nil
}

// List returns snapshot IDs, oldest first.
func (r *RedisStore) List(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to list snapshots")
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, eris.Wrapf(err, "bad snapshot id %q in index", m)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a snapshot and its index entry.
func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.snapshotKey(id))
		pipe.ZRem(ctx, r.indexKey(), id.String())
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "failed to delete snapshot %s", id)
	}
	return nil
}
