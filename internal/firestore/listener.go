package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

const listenerSource = "firestore"

// ChangeListener turns snapshot changes on the records collection into
// cache change events, so writes made by other devices reach this instance.
type ChangeListener struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
	handler    func(context.Context, *models.ChangeEvent) error
}

func (s *Store) NewChangeListener(handler func(context.Context, *models.ChangeEvent) error) *ChangeListener {
	return &ChangeListener{
		client:     s.client,
		collection: s.cfg.Collection,
		logger:     s.logger,
		handler:    handler,
	}
}

func (cl *ChangeListener) Listen(ctx context.Context) error {
	snapIter := cl.client.Collection(cl.collection).Snapshots(ctx)
	defer snapIter.Stop()

	for {
		snap, err := snapIter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cl.logger.Error("snapshot iterator error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, change := range snap.Changes {
			var rec models.CachedRecord
			if err := change.Doc.DataTo(&rec); err != nil {
				cl.logger.Warn("undecodable record change", zap.String("doc_id", change.Doc.Ref.ID), zap.Error(err))
				continue
			}
			event := changeEvent(change.Kind, change.Doc.Ref.ID, rec)

			if err := cl.handler(ctx, event); err != nil {
				cl.logger.Error("change event handler error",
					zap.String("record_id", event.RecordID),
					zap.String("type", event.Type),
					zap.Error(err),
				)
			}
		}
	}
}

func changeEvent(kind firestore.DocumentChangeKind, docID string, rec models.CachedRecord) *models.ChangeEvent {
	eventType := cache.ChangeCreate
	if kind == firestore.DocumentRemoved {
		eventType = cache.ChangeDelete
	}
	return &models.ChangeEvent{
		Type:      eventType,
		Group:     string(rec.Group),
		Identity:  rec.Identity,
		RecordID:  docID,
		Source:    listenerSource,
		Timestamp: time.Now().UTC(),
	}
}
