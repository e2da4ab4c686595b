package service

import (
	"context"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() model.CreateEventRequest {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return model.CreateEventRequest{
		Name:        "  Jazz Night ",
		Description: "Live set",
		Venue:       "Alliance Française",
		StartsAt:    start,
		EndsAt:      start.Add(4 * time.Hour),
		Tiers: []model.CreateTierRequest{
			{Name: "Regular", Price: 500, TotalQuantity: 100},
			{Name: "VIP", Price: 2000, TotalQuantity: 20},
		},
	}
}

func TestCreateEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewEventService(store, nil)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", event.Name)
	require.Len(t, event.Tiers, 2)

	got, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, got.Tiers, 2)
	assert.Equal(t, "Regular", got.Tiers[0].Name)
	assert.Equal(t, 0, got.Tiers[0].SoldQuantity)
}

func TestCreateEventValidation(t *testing.T) {
	svc := NewEventService(repository.NewMemoryStore(), nil)
	ctx := context.Background()

	cases := map[string]func(r *model.CreateEventRequest){
		"blank name":        func(r *model.CreateEventRequest) { r.Name = "  " },
		"ends before start": func(r *model.CreateEventRequest) { r.EndsAt = r.StartsAt.Add(-time.Hour) },
		"no tiers":          func(r *model.CreateEventRequest) { r.Tiers = nil },
		"zero seats":        func(r *model.CreateEventRequest) { r.Tiers[0].TotalQuantity = 0 },
		"too many seats":    func(r *model.CreateEventRequest) { r.Tiers[0].TotalQuantity = 100_001 },
		"negative price":    func(r *model.CreateEventRequest) { r.Tiers[1].Price = -1 },
		"price too high":    func(r *model.CreateEventRequest) { r.Tiers[1].Price = model.MaxTierPrice + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.CreateEvent(ctx, req)
			assert.Error(t, err)
		})
	}
}

func TestGetEventNotFound(t *testing.T) {
	svc := NewEventService(repository.NewMemoryStore(), nil)

	_, err := svc.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.GetEvent(context.Background(), "")
	assert.Error(t, err)
}

func TestSeedDemoOnlyOnce(t *testing.T) {
	svc := NewEventService(repository.NewMemoryStore(), nil)
	ctx := context.Background()

	seeded, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	require.NotNil(t, seeded)
	require.Len(t, seeded.Tiers, 2)
	assert.Equal(t, int64(100), seeded.Tiers[0].Price)
	assert.Equal(t, 70, seeded.Tiers[0].TotalQuantity)
	assert.Equal(t, 250, seeded.Tiers[1].TotalQuantity)

	again, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	events, err := svc.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
