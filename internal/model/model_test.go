package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductDerivedFields(t *testing.T) {
	p := Product{ID: 1, Slug: "mixer", Price: decimal.NewFromInt(299), Stock: 0}
	assert.False(t, p.InStock())
	assert.Equal(t, PlaceholderImage, p.PrimaryImage())

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, false, out["inStock"])
	assert.Equal(t, "mixer", out["slug"])
	assert.Nil(t, out["oldPrice"])
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$215.00", FormatPrice(decimal.NewFromInt(215)))
	assert.Equal(t, "$0.50", FormatPrice(decimal.RequireFromString("0.5")))
	assert.Equal(t, "★★★★☆", RenderStars(4.2))
	assert.Equal(t, "★★★★★", RenderStars(9))
	assert.Equal(t, "☆☆☆☆☆", RenderStars(-1))
}

func TestAccountProfileDropsSecret(t *testing.T) {
	a := Account{ID: 7, Email: "a@b.uz", PasswordHash: "$2a$..."}
	b, err := json.Marshal(a.Profile())
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")
}
