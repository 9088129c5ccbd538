// Package firestore is the cloud cache.Store. Records live in one collection
// keyed by record id; recommendation rows live in a sibling collection.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

type Store struct {
	client *firestore.Client
	cfg    config.FirestoreConfig
	logger *zap.Logger
}

func NewStore(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("firestore cache store connected",
		zap.String("project", cfg.ProjectID),
		zap.String("collection", cfg.Collection),
	)

	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (s *Store) records() *firestore.CollectionRef {
	return s.client.Collection(s.cfg.Collection)
}

func (s *Store) recommendations() *firestore.CollectionRef {
	return s.client.Collection(s.cfg.Collection + "_recommendations")
}

func (s *Store) FetchGroup(ctx context.Context, group models.CacheGroup) ([]models.CachedRecord, error) {
	ctx, span := observability.StartSpan(ctx, "firestore.fetch_group",
		attribute.String("group", string(group)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	iter := s.records().Where("group", "==", string(group)).Documents(ctx)
	defer iter.Stop()

	var records []models.CachedRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore fetch group %s: %w", group, err)
		}
		var rec models.CachedRecord
		if err := doc.DataTo(&rec); err != nil {
			s.logger.Warn("skipping undecodable cached record", zap.String("doc_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		if rec.RecordID == "" {
			rec.RecordID = doc.Ref.ID
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		observability.CacheMisses.WithLabelValues("firestore").Inc()
	} else {
		observability.CacheHits.WithLabelValues("firestore").Inc()
	}
	span.SetAttributes(attribute.Int("count", len(records)))
	return records, nil
}

func (s *Store) StoreRecord(ctx context.Context, record models.CachedRecord) (models.CachedRecord, error) {
	if record.RecordID == "" {
		record.RecordID = cache.RecordID(record.Group, record.Identity)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if _, err := s.records().Doc(record.RecordID).Set(ctx, record); err != nil {
		return record, fmt.Errorf("firestore store record %s: %w", record.RecordID, err)
	}
	return record, nil
}

func (s *Store) DeleteRecord(ctx context.Context, group models.CacheGroup, identity string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	id := cache.RecordID(group, identity)
	if _, err := s.records().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete record %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes every record and recommendation row in batches of
// MaxBatchSize.
func (s *Store) DeleteAll(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "firestore.delete_all")
	defer span.End()

	var refs []*firestore.DocumentRef
	for _, coll := range []*firestore.CollectionRef{s.records(), s.recommendations()} {
		docRefs, err := coll.DocumentRefs(ctx).GetAll()
		if err != nil {
			return fmt.Errorf("firestore list %s: %w", coll.ID, err)
		}
		refs = append(refs, docRefs...)
	}

	batchSize := s.cfg.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for i := 0; i < len(refs); i += batchSize {
		end := i + batchSize
		if end > len(refs) {
			end = len(refs)
		}

		// Each batch gets its own timeout so sequential batches don't starve.
		batchCtx, batchCancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		err := s.deleteBatch(batchCtx, refs[i:end])
		batchCancel()
		if err != nil {
			return fmt.Errorf("firestore delete batch %d: %w", i/batchSize, err)
		}
	}

	span.SetAttributes(attribute.Int("count", len(refs)))
	return nil
}

func (s *Store) deleteBatch(ctx context.Context, refs []*firestore.DocumentRef) error {
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FetchRecommendationData(ctx context.Context) ([]models.RecommendationData, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	docs, err := s.recommendations().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore fetch recommendation data: %w", err)
	}

	rows := make([]models.RecommendationData, 0, len(docs))
	for _, doc := range docs {
		var row models.RecommendationData
		if err := doc.DataTo(&row); err != nil {
			s.logger.Warn("skipping undecodable recommendation row", zap.String("doc_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) StoreRecommendationData(ctx context.Context, data models.RecommendationData) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	id := cache.RecordID("Recommendation", cache.RecommendationKey(data))
	if _, err := s.recommendations().Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("firestore store recommendation data: %w", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := s.client.Collection("_health_check").Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	// iterator.Done means the collection is empty, so Firestore is reachable.
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore health check: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ cache.Store = (*Store)(nil)
