package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankGenerator(t *testing.T) {
	t.Run("produces the requested dimensions", func(t *testing.T) {
		g := NewBankGenerator(1)

		board, err := g.GenerateBoard(context.Background(), 3, 4)
		require.NoError(t, err)
		require.Len(t, board.Categories, 3)
		for _, cat := range board.Categories {
			assert.NotEmpty(t, cat.Title)
			require.Len(t, cat.Clues, 4)
			for j, clue := range cat.Clues {
				assert.Equal(t, (j+1)*200, clue.Value)
				assert.NotEmpty(t, clue.Text)
				assert.NotEmpty(t, clue.Answer)
				assert.False(t, clue.Claimed)
			}
		}
	})

	t.Run("same seed gives the same board", func(t *testing.T) {
		first, err := NewBankGenerator(42).GenerateBoard(context.Background(), 4, 3)
		require.NoError(t, err)
		second, err := NewBankGenerator(42).GenerateBoard(context.Background(), 4, 3)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("categories are distinct", func(t *testing.T) {
		board, err := NewBankGenerator(7).GenerateBoard(context.Background(), len(bank), 2)
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, cat := range board.Categories {
			assert.False(t, seen[cat.Title], "duplicate category %q", cat.Title)
			seen[cat.Title] = true
		}
	})

	t.Run("rejects impossible dimensions", func(t *testing.T) {
		g := NewBankGenerator(1)

		_, err := g.GenerateBoard(context.Background(), 0, 5)
		assert.Error(t, err)
		_, err = g.GenerateBoard(context.Background(), 2, 0)
		assert.Error(t, err)
		_, err = g.GenerateBoard(context.Background(), len(bank)+1, 2)
		assert.Error(t, err)
		_, err = g.GenerateBoard(context.Background(), 2, len(bank[0].clues)+1)
		assert.Error(t, err)
	})
}
