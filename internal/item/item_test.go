package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_ULIDAndMonotonic(t *testing.T) {
	a := NewID()
	b := NewID()

	require.Len(t, a, 26)
	require.Len(t, b, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "ids generated in sequence should sort in sequence")
}

func TestClone_IsDeep(t *testing.T) {
	result := "cleaned"
	orig := &Item{
		ID:        "1",
		Content:   "hello",
		ImageData: []byte{1, 2, 3},
		Tags:      []string{"a"},
		AIResult:  &result,
		AIAdvanced: &AIProcessingResult{
			ModelsUsed:  map[string]string{"clean": "llama3"},
			Suggestions: []string{"clean"},
		},
	}

	c := orig.Clone()
	c.ImageData[0] = 9
	c.Tags[0] = "b"
	*c.AIResult = "changed"
	c.AIAdvanced.ModelsUsed["clean"] = "other"
	c.AIAdvanced.Suggestions[0] = "rewrite"

	assert.Equal(t, byte(1), orig.ImageData[0])
	assert.Equal(t, "a", orig.Tags[0])
	assert.Equal(t, "cleaned", *orig.AIResult)
	assert.Equal(t, "llama3", orig.AIAdvanced.ModelsUsed["clean"])
	assert.Equal(t, "clean", orig.AIAdvanced.Suggestions[0])
}

func TestClone_Nil(t *testing.T) {
	var it *Item
	assert.Nil(t, it.Clone())
}

func TestAIModel_Supports(t *testing.T) {
	m := AIModel{Name: "llama3", Capabilities: []string{"clean", "summarize"}}
	assert.True(t, m.Supports("clean"))
	assert.False(t, m.Supports("translate"))
}

func TestHasTag(t *testing.T) {
	it := &Item{Tags: []string{"work"}}
	assert.True(t, it.HasTag("work"))
	assert.False(t, it.HasTag("home"))
}
