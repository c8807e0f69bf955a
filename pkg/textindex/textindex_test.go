package textindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "hello world", Canonicalize("  Hello,   WORLD!! "))
	assert.Equal(t, "o'brien's jean-luc", Canonicalize("O’Brien’s, Jean–Luc"))
	assert.Equal(t, "", Canonicalize("?!"))
}

func TestTokenizeDropsStopwords(t *testing.T) {
	assert.Equal(t, []string{"quick", "brown", "fox", "lazy", "dog"},
		Tokenize("The quick brown fox and the lazy dog."))
	assert.Empty(t, Tokenize("the and of -- ..."))
}

func TestKeywords(t *testing.T) {
	terms := Keywords("Budget review. The budget is tight; review the budget again.", 2)
	require.Len(t, terms, 2)
	assert.Equal(t, Term{Word: "budget", Count: 3}, terms[0])
	assert.Equal(t, Term{Word: "review", Count: 2}, terms[1])
}

func TestMentionIndexScan(t *testing.T) {
	idx, err := NewMentionIndex([]Titled{
		{ID: "p1", Title: "Project Plan"},
		{ID: "p2", Title: "Plan"},
		{ID: "p3", Title: "Q3"},
		{ID: "p4", Title: "project plan"},
		{ID: "p5", Title: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	text := "See the Project Plan. Explanation follows."
	var found *Mention
	for _, m := range idx.Scan(text) {
		assert.NotEqual(t, "plan", m.Text, "must not match inside Explanation")
		if m.Text == "Project Plan" {
			m := m
			found = &m
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"p1", "p4"}, found.DocumentIDs)
	assert.Equal(t, "Project Plan", text[found.Start:found.End])

	ids := idx.Mentioned(text)
	assert.Contains(t, ids, "p1")
	assert.Contains(t, ids, "p4")
	assert.NotContains(t, ids, "p3")
}

func TestMentionIndexWordBoundaries(t *testing.T) {
	idx, err := NewMentionIndex([]Titled{{ID: "art", Title: "Art"}})
	require.NoError(t, err)

	assert.Empty(t, idx.Mentioned("Let's start the party"))
	assert.Equal(t, []string{"art"}, idx.Mentioned("modern art."))
	assert.Equal(t, []string{"art"}, idx.Mentioned("Art's history"))
}

func TestEmptyIndex(t *testing.T) {
	idx, err := NewMentionIndex(nil)
	require.NoError(t, err)
	assert.Nil(t, idx.Scan("anything"))
}

func TestEmbed(t *testing.T) {
	a := Embed("gardening tomatoes soil compost")
	b := Embed("compost soil for tomatoes gardening")
	c := Embed("quarterly revenue forecast spreadsheet")

	require.Len(t, a, Dimensions)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
	assert.Less(t, Cosine(a, c), Cosine(a, b))
	assert.Nil(t, Embed("the of and"))
	assert.Zero(t, Cosine(a, nil))
}
