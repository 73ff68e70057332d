package loyalty

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shft.ru/secure-bot/internal/common"
)

func TestNewTable_Default(t *testing.T) {
	table, err := NewTable(DefaultTiers)
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, TierPlatinum, table.Top().Name)
}

func TestNewTable_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"first not zero", []Tier{{Name: "a", MinPoints: 10}}},
		{"not increasing", []Tier{{Name: "a"}, {Name: "b", MinPoints: 100}, {Name: "c", MinPoints: 100}}},
		{"decreasing", []Tier{{Name: "a"}, {Name: "b", MinPoints: 100}, {Name: "c", MinPoints: 50}}},
		{"discount above 100", []Tier{{Name: "a"}, {Name: "b", MinPoints: 100, DiscountPercent: 101}}},
		{"negative discount", []Tier{{Name: "a", DiscountPercent: -1}}},
		{"discount goes down", []Tier{{Name: "a", DiscountPercent: 5}, {Name: "b", MinPoints: 100, DiscountPercent: 3}}},
		{"duplicate name", []Tier{{Name: "a"}, {Name: "a", MinPoints: 100}}},
		{"empty name", []Tier{{Name: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewTable(tt.tiers)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidTierTable)
			assert.Nil(t, table)
		})
	}
}

func TestNewTable_CopiesInput(t *testing.T) {
	input := slices.Clone(DefaultTiers)
	table, err := NewTable(input)
	require.NoError(t, err)

	input[1].DiscountPercent = 99
	tier, err := table.TierAt(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tier.DiscountPercent)
}

func TestTable_All(t *testing.T) {
	table := MustDefaultTable()

	first := slices.Collect(table.All())
	second := slices.Collect(table.All())
	assert.Equal(t, DefaultTiers, first)
	assert.Equal(t, first, second, "последовательность должна перезапускаться")

	// Ранний выход из range не ломает итератор
	var names []TierName
	for tier := range table.All() {
		names = append(names, tier.Name)
		if tier.Name == TierSilver {
			break
		}
	}
	assert.Equal(t, []TierName{TierBronze, TierSilver}, names)
}

func TestTable_TierAt(t *testing.T) {
	table := MustDefaultTable()

	tier, err := table.TierAt(2)
	require.NoError(t, err)
	assert.Equal(t, TierGold, tier.Name)

	for _, idx := range []int{-1, 4, 100} {
		_, err := table.TierAt(idx)
		assert.ErrorIs(t, err, common.ErrOutOfRange, "index %d", idx)
	}
}

func TestTable_ByName(t *testing.T) {
	table := MustDefaultTable()

	tier, ok := table.ByName(TierGold)
	require.True(t, ok)
	assert.Equal(t, int64(1000), tier.MinPoints)

	_, ok = table.ByName("diamond")
	assert.False(t, ok)
}

func TestTable_TiersIsCopy(t *testing.T) {
	table := MustDefaultTable()
	tiers := table.Tiers()
	tiers[0].Name = "broken"

	tier, err := table.TierAt(0)
	require.NoError(t, err)
	assert.Equal(t, TierBronze, tier.Name)
}
