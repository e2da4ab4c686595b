package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedEventReader serves event headers from Redis. Events do not change
// after creation; tiers carry live sold counts, so they are always read from
// the primary store.
type CachedEventReader struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedEventReader constructs a CachedEventReader.
func NewCachedEventReader(primary Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedEventReader {
	return &CachedEventReader{primary: primary, rdb: rdb, ttl: ttl, logger: logger}
}

func eventKey(id string) string { return "event:" + id }

func (r *CachedEventReader) GetEvent(ctx context.Context, id string) (*model.EventListing, error) {
	cached, err := r.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var event model.EventListing
		if err := json.Unmarshal(cached, &event); err == nil {
			if event.Tiers, err = r.primary.ListTiers(ctx, id); err != nil {
				return nil, err
			}
			return &event, nil
		}
	} else if err != redis.Nil {
		r.logger.Warn("event cache read failed", zap.String("event_id", id), zap.Error(err))
	}

	event, err := r.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	header := *event
	header.Tiers = nil
	if data, err := json.Marshal(header); err == nil {
		if err := r.rdb.Set(ctx, eventKey(id), data, r.ttl).Err(); err != nil {
			r.logger.Warn("event cache write failed", zap.String("event_id", id), zap.Error(err))
		}
	}
	return event, nil
}

// ListEvents delegates to the primary store; the listing is not cached.
func (r *CachedEventReader) ListEvents(ctx context.Context) ([]model.EventListing, error) {
	return r.primary.ListEvents(ctx)
}
