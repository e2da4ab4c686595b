// Package service implements the event catalogue: validation and
// orchestration between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/google/uuid"
)

// EventService orchestrates catalogue operations.
type EventService struct {
	store  repository.Store
	events repository.EventReader
}

// NewEventService constructs an EventService. events may be a cache in front
// of store.
func NewEventService(store repository.Store, events repository.EventReader) *EventService {
	if events == nil {
		events = store
	}
	return &EventService{store: store, events: events}
}

// CreateEvent validates the request and stores the event with its tiers.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.EventListing, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, fmt.Errorf("event must end after it starts")
	}
	if len(req.Tiers) == 0 {
		return nil, fmt.Errorf("at least one ticket tier is required")
	}
	for _, t := range req.Tiers {
		if t.TotalQuantity <= 0 {
			return nil, fmt.Errorf("tier %q: total_quantity must be a positive integer", t.Name)
		}
		if t.TotalQuantity > model.MaxTierQuantity {
			return nil, fmt.Errorf("tier %q: total_quantity cannot exceed 100,000", t.Name)
		}
		if t.Price < 0 {
			return nil, fmt.Errorf("tier %q: price cannot be negative", t.Name)
		}
		if t.Price > model.MaxTierPrice {
			return nil, fmt.Errorf("tier %q: price cannot exceed %d", t.Name, model.MaxTierPrice)
		}
	}

	event := &model.EventListing{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Venue:       strings.TrimSpace(req.Venue),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	for _, t := range req.Tiers {
		tier := model.TicketTier{
			ID:            uuid.New().String(),
			EventID:       event.ID,
			Name:          strings.TrimSpace(t.Name),
			Price:         t.Price,
			TotalQuantity: t.TotalQuantity,
		}
		if err := s.store.CreateTier(ctx, &tier); err != nil {
			return nil, err
		}
		event.Tiers = append(event.Tiers, tier)
	}
	return event, nil
}

// ListEvents returns all events with their tiers.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventListing, error) {
	return s.events.ListEvents(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventListing, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// SeedDemo creates the demo event when the catalogue is empty.
func (s *EventService) SeedDemo(ctx context.Context) (*model.EventListing, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		return nil, nil
	}
	return s.CreateEvent(ctx, model.CreateEventRequest{
		Name:        "Pool Party - School Uniform Edition",
		Description: "Hosted by Britstar Events & Planning",
		Venue:       "Greenyard Resort, Mtwapa (Near Cornster Hotel)",
		StartsAt:    time.Date(2025, 12, 6, 15, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2025, 12, 7, 5, 0, 0, 0, time.UTC),
		Tiers: []model.CreateTierRequest{
			{Name: "Regular", Price: 100, TotalQuantity: 70},
			{Name: "VIP", Price: 1500, TotalQuantity: 250},
		},
	})
}
