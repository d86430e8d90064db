package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisQualityReportRepository stores each report as JSON under its own key
// and keeps a sorted-set index of session ids scored by update time. Expired
// reports are pruned from the index lazily on List.
type RedisQualityReportRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisQualityReportRepository(client *redis.Client, prefix string, ttl time.Duration) ports.QualityReportRepository {
	return &RedisQualityReportRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func reportKeyPrefix(prefix string) string {
	return prefix + "report:"
}

func indexKey(prefix string) string {
	return prefix + "reports"
}

func (r *RedisQualityReportRepository) reportKey(id domain.SessionID) string {
	return reportKeyPrefix(r.prefix) + string(id)
}

func (r *RedisQualityReportRepository) Save(ctx context.Context, report *domain.QualityReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.reportKey(report.SessionID), data, r.ttl)
		pipe.ZAdd(ctx, indexKey(r.prefix), redis.Z{
			Score:  float64(report.UpdatedAt.Unix()),
			Member: string(report.SessionID),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report in Redis: %w", err)
	}
	return nil
}

func (r *RedisQualityReportRepository) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	data, err := r.client.Get(ctx, r.reportKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report from Redis: %w", err)
	}

	var report domain.QualityReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

func (r *RedisQualityReportRepository) Delete(ctx context.Context, id domain.SessionID) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.reportKey(id))
		pipe.ZRem(ctx, indexKey(r.prefix), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete report from Redis: %w", err)
	}
	if deleted.Val() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// List returns the stored reports ordered by session id.
func (r *RedisQualityReportRepository) List(ctx context.Context) ([]*domain.QualityReport, error) {
	ids, err := r.client.ZRange(ctx, indexKey(r.prefix), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read report index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.QualityReport{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.reportKey(domain.SessionID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reports from Redis: %w", err)
	}

	reports := make([]*domain.QualityReport, 0, len(values))
	var expired []interface{}
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var report domain.QualityReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %s: %w", ids[i], err)
		}
		reports = append(reports, &report)
	}

	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, indexKey(r.prefix), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune report index: %w", err)
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SessionID < reports[j].SessionID
	})
	return reports, nil
}
