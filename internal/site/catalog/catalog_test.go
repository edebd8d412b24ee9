package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/pkg/sentinel"
)

func TestSearchMatchesLocationAndName(t *testing.T) {
	c := New(Seed())
	ctx := context.Background()

	results := c.Search(ctx, "yorkshire")
	require.Len(t, results, 1)
	assert.Equal(t, "coastal-cottage-whitby", results[0].ID)

	results = c.Search(ctx, "LOFT")
	require.Len(t, results, 1)
	assert.Equal(t, "city-loft-manchester", results[0].ID)

	assert.Empty(t, c.Search(ctx, "atlantis"))
	assert.Len(t, c.Search(ctx, ""), len(Seed()), "empty query lists everything")
}

func TestFindByID(t *testing.T) {
	c := New(Seed())

	p, err := c.FindByID(context.Background(), "seafront-flat-brighton")
	require.NoError(t, err)
	assert.Equal(t, "Brighton", p.Location)

	_, err = c.FindByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
