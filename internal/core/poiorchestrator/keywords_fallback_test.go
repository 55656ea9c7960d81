package poiorchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupplementKeywords_DedupsExistingCaseInsensitively(t *testing.T) {
	got := supplementKeywords("wine tasting", []string{"Museum", "museum"}, 10)
	assert.Equal(t, []string{"Museum"}, got)
}

func TestSupplementKeywords_AddsDictionaryHitsFromPersona(t *testing.T) {
	got := supplementKeywords("loves a good restaurant and hiking in a park", nil, 10)
	assert.Contains(t, got, "restaurant")
	assert.Contains(t, got, "park")
}

func TestSupplementKeywords_DoesNotDuplicateAcrossExistingAndDictionary(t *testing.T) {
	got := supplementKeywords("foodie who loves restaurant visits", []string{"restaurant"}, 10)
	count := 0
	for _, k := range got {
		if k == "restaurant" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSupplementKeywords_BoundedByKeywordK(t *testing.T) {
	got := supplementKeywords("", nil, 2)
	assert.LessOrEqual(t, len(got), 2)
}

func TestSupplementKeywords_NoDictionaryHitsReturnsExistingOnly(t *testing.T) {
	got := supplementKeywords("a quiet walk by the river", []string{"scenic"}, 10)
	assert.Equal(t, []string{"scenic"}, got)
}
