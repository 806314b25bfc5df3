package seed_test

import (
	"context"
	"testing"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories/memory"
	"society-ticketing/internal/seed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	res, err := seed.Demo(ctx, store, now)
	require.NoError(t, err)
	require.Len(t, res.Societies, 2)
	require.Len(t, res.Events, 2)
	require.Len(t, res.Students, 3)

	chess, err := store.GetSociety(ctx, res.Societies[0])
	require.NoError(t, err)
	assert.True(t, chess.Payout.Verified())
	assert.True(t, chess.CommitteeMembers.Has(res.Students[0]))

	play, err := store.GetEvent(ctx, res.Events[1])
	require.NoError(t, err)
	require.Len(t, play.Organizers(), 2, "the play is co-organized by chess")
	assert.True(t, play.StartTime.After(now))

	grace, err := store.GetStudent(ctx, res.Students[1])
	require.NoError(t, err)
	assert.True(t, grace.IsRegularMember(chess.ID))
}

func TestDemo_AlongsideExistingData(t *testing.T) {
	store := memory.NewStore()
	store.AddSociety(&models.Society{Name: "existing"})

	_, err := seed.Demo(context.Background(), store, time.Now())
	require.NoError(t, err)
}
