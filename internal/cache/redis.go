package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

// RedisStore keeps one hash per group, keyed by record identity, plus one
// hash of recommendation rows.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache store connected", zap.Strings("addresses", cfg.Addresses))

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.RecordTTL, logger), nil
}

func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (rs *RedisStore) FetchGroup(ctx context.Context, group models.CacheGroup) ([]models.CachedRecord, error) {
	vals, err := rs.client.HGetAll(ctx, rs.groupKey(group)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache fetch group %s: %w", group, err)
	}
	if len(vals) == 0 {
		observability.CacheMisses.WithLabelValues("redis").Inc()
		return nil, nil
	}
	observability.CacheHits.WithLabelValues("redis").Inc()

	records := make([]models.CachedRecord, 0, len(vals))
	for identity, val := range vals {
		var rec models.CachedRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			rs.logger.Warn("skipping undecodable cached record",
				zap.String("group", string(group)),
				zap.String("identity", identity),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (rs *RedisStore) StoreRecord(ctx context.Context, record models.CachedRecord) (models.CachedRecord, error) {
	if record.RecordID == "" {
		record.RecordID = RecordID(record.Group, record.Identity)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return record, fmt.Errorf("cache marshal record: %w", err)
	}

	key := rs.groupKey(record.Group)
	pipe := rs.client.TxPipeline()
	pipe.HSet(ctx, key, record.Identity, data)
	if rs.ttl > 0 {
		pipe.Expire(ctx, key, rs.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return record, fmt.Errorf("cache store record: %w", err)
	}
	return record, nil
}

func (rs *RedisStore) DeleteRecord(ctx context.Context, group models.CacheGroup, identity string) error {
	if err := rs.client.HDel(ctx, rs.groupKey(group), identity).Err(); err != nil {
		return fmt.Errorf("cache delete record: %w", err)
	}
	return nil
}

func (rs *RedisStore) DeleteAll(ctx context.Context) error {
	keys := []string{rs.recommendationKey()}
	for _, g := range models.CacheGroups() {
		keys = append(keys, rs.groupKey(g))
	}
	if err := rs.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete all: %w", err)
	}
	return nil
}

func (rs *RedisStore) FetchRecommendationData(ctx context.Context) ([]models.RecommendationData, error) {
	vals, err := rs.client.HGetAll(ctx, rs.recommendationKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("cache fetch recommendation data: %w", err)
	}

	rows := make([]models.RecommendationData, 0, len(vals))
	for _, val := range vals {
		var row models.RecommendationData
		if err := json.Unmarshal([]byte(val), &row); err != nil {
			rs.logger.Warn("skipping undecodable recommendation row", zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (rs *RedisStore) StoreRecommendationData(ctx context.Context, data models.RecommendationData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache marshal recommendation data: %w", err)
	}
	if err := rs.client.HSet(ctx, rs.recommendationKey(), RecommendationKey(data), raw).Err(); err != nil {
		return fmt.Errorf("cache store recommendation data: %w", err)
	}
	return nil
}

func (rs *RedisStore) HealthCheck(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) groupKey(group models.CacheGroup) string {
	return fmt.Sprintf("%s:records:%s", rs.prefix, group)
}

func (rs *RedisStore) recommendationKey() string {
	return fmt.Sprintf("%s:recommendations", rs.prefix)
}
