package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkillLevelsEmptyDefaultsToMin(t *testing.T) {
	got := ParseSkillLevels(nil)

	assert.Len(t, got, len(AllSkillAreas))
	for _, area := range AllSkillAreas {
		assert.Equal(t, MinSkillLevel, got.LevelFor(area).Level)
	}
}

func TestParseSkillLevelsNestedShape(t *testing.T) {
	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	levels := SkillLevelMap{
		AreaConversations: {Level: 3, Since: &since},
		AreaTalks:         {Level: 2},
	}

	got := ParseSkillLevels(levels.Marshal())

	assert.Equal(t, 3, got.LevelFor(AreaConversations).Level)
	require.NotNil(t, got.LevelFor(AreaConversations).Since)
	assert.True(t, got.LevelFor(AreaConversations).Since.Equal(since))
	assert.Equal(t, 2, got.LevelFor(AreaTalks).Level)
	// 未出现的分区回落到最低级
	assert.Equal(t, MinSkillLevel, got.LevelFor(AreaPhotographs).Level)
}

func TestParseSkillLevelsLegacyFlatShape(t *testing.T) {
	raw := json.RawMessage(`{"photographs": 2, "reading_comprehension": 3}`)

	got := ParseSkillLevels(raw)

	assert.Equal(t, 2, got.LevelFor(AreaPhotographs).Level)
	assert.Equal(t, 3, got.LevelFor(AreaReadingComprehension).Level)
	assert.Nil(t, got.LevelFor(AreaPhotographs).Since)
	assert.Equal(t, MinSkillLevel, got.LevelFor(AreaTalks).Level)
}

func TestParseSkillLevelsIgnoresInvalidEntries(t *testing.T) {
	raw := json.RawMessage(`{"photographs": {"level": 9}, "bogus_area": {"level": 2}, "talks": {"level": 3}}`)

	got := ParseSkillLevels(raw)

	assert.Equal(t, MinSkillLevel, got.LevelFor(AreaPhotographs).Level)
	assert.Equal(t, 3, got.LevelFor(AreaTalks).Level)
	_, hasBogus := got[SkillArea("bogus_area")]
	assert.False(t, hasBogus)
}

func TestParseSkillLevelsGarbage(t *testing.T) {
	got := ParseSkillLevels(json.RawMessage(`not json`))
	for _, area := range AllSkillAreas {
		assert.Equal(t, MinSkillLevel, got.LevelFor(area).Level)
	}
}

func TestSkillAreaSection(t *testing.T) {
	assert.Equal(t, SectionListening, AreaPhotographs.Section())
	assert.Equal(t, SectionListening, AreaTalks.Section())
	assert.Equal(t, SectionReading, AreaIncompleteSentences.Section())
	assert.Equal(t, SectionReading, AreaReadingComprehension.Section())
}
