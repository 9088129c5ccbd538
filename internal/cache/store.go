package cache

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

// Store persists the user's cached records and recommendation rows.
// Redis, SQLite and Firestore implementations exist.
type Store interface {
	FetchGroup(ctx context.Context, group models.CacheGroup) ([]models.CachedRecord, error)
	StoreRecord(ctx context.Context, record models.CachedRecord) (models.CachedRecord, error)
	DeleteRecord(ctx context.Context, group models.CacheGroup, identity string) error
	DeleteAll(ctx context.Context) error
	FetchRecommendationData(ctx context.Context) ([]models.RecommendationData, error)
	StoreRecommendationData(ctx context.Context, data models.RecommendationData) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// ChangePublisher announces committed cache writes to other instances.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event models.ChangeEvent) error
}

const (
	ChangeCreate = "CREATE"
	ChangeDelete = "DELETE"
	ChangeClear  = "CLEAR"
)

// RecommendationKey identifies one recommendation row. A place can carry
// several attributes, each rated on its own row.
func RecommendationKey(data models.RecommendationData) string {
	return data.Identity + "|" + data.Attribute
}

// RecordID derives a stable record id from group and identity so every
// store assigns the same id to the same record.
func RecordID(group models.CacheGroup, identity string) string {
	return hashString(string(group) + ":" + identity)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
