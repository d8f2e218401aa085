package status

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/labdesk/backoffice/internal/model"
)

// KeyPrefix is the fixed prefix under which one JSON record per appointment
// id is stored. There is no schema versioning: readers treat absent or
// malformed entries as "no override".
const KeyPrefix = "labdesk:apptstatus:"

type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisStore(rdb *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

func key(appointmentID string) string {
	return KeyPrefix + appointmentID
}

func (s *RedisStore) Save(ctx context.Context, rec model.PersistedStatusRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// No TTL: overrides are durable until explicitly finalized/deleted.
	return s.rdb.Set(ctx, key(rec.AppointmentID), raw, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, appointmentID string) (model.PersistedStatusRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, key(appointmentID)).Bytes()
	if err == redis.Nil {
		return model.PersistedStatusRecord{}, false, nil
	}
	if err != nil {
		return model.PersistedStatusRecord{}, false, err
	}
	var rec model.PersistedStatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("malformed status override ignored", "appointment_id", appointmentID, "err", err)
		return model.PersistedStatusRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) LoadAll(ctx context.Context, appointmentIDs []string) (map[string]model.PersistedStatusRecord, error) {
	if len(appointmentIDs) == 0 {
		return map[string]model.PersistedStatusRecord{}, nil
	}
	keys := make([]string, len(appointmentIDs))
	for i, id := range appointmentIDs {
		keys[i] = key(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.PersistedStatusRecord, len(appointmentIDs))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec model.PersistedStatusRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("malformed status override ignored", "appointment_id", appointmentIDs[i], "err", err)
			continue
		}
		out[appointmentIDs[i]] = rec
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, appointmentID string) error {
	return s.rdb.Del(ctx, key(appointmentID)).Err()
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

var _ Store = (*RedisStore)(nil)
