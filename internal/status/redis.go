package status

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"attachget/internal/model"
)

const keyPrefix = "run:status:"

// Store хранит сводки запусков в Redis: одна hash-запись на запуск.
// Поля id/channel_id/status дублируются для удобства ручного просмотра,
// сама сводка лежит в поле payload.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect создаёт клиента и проверяет соединение.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func runKey(id string) string {
	return keyPrefix + id
}

func (s *Store) Save(ctx context.Context, run model.Run) error {
	run.ExpiresAt = time.Now().Add(s.ttl)

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run failed: %w", err)
	}

	key := runKey(run.ID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", run.ID,
			"channel_id", run.ChannelID,
			"status", string(run.Status),
			"payload", payload,
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s failed: %w", run.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Run, error) {
	data, err := s.rdb.HGet(ctx, runKey(id), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Run{}, model.ErrRunNotFound
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("get run %s failed: %w", id, err)
	}
	return decode(data)
}

// List возвращает все запуски, новые первыми. Записи, которые не удалось
// прочитать, пропускаются с предупреждением в логе.
func (s *Store) List(ctx context.Context) ([]model.Run, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan runs failed: %w", err)
	}

	runs := make([]model.Run, 0, len(keys))
	if len(keys) == 0 {
		return runs, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGet(ctx, key, "payload")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read runs failed: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// ключ мог истечь между SCAN и HGET
			if !errors.Is(err, redis.Nil) {
				slog.Warn("read run failed", "key", keys[i], "error", err)
			}
			continue
		}
		run, err := decode(data)
		if err != nil {
			slog.Warn("decode run failed", "key", keys[i], "error", err)
			continue
		}
		runs = append(runs, run)
	}

	slices.SortFunc(runs, func(a, b model.Run) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return runs, nil
}

func decode(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, fmt.Errorf("unmarshal run failed: %w", err)
	}
	return run, nil
}
