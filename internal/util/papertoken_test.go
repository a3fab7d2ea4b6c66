package util

import (
	"testing"
	"time"
	"toeic_prep_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPaperAssignmentRoundTrip(t *testing.T) {
	variant := 4
	original := PaperAssignment{
		Variant:  &variant,
		Kind:     model.KindPlacement,
		IssuedAt: time.Now().Truncate(time.Second),
		TTL:      2 * time.Hour,
	}

	token, err := SignPaperAssignment(original, testSecret)
	require.NoError(t, err)

	parsed, err := ParsePaperAssignment(token, testSecret)
	require.NoError(t, err)

	require.NotNil(t, parsed.Variant)
	assert.Equal(t, 4, *parsed.Variant)
	assert.Equal(t, model.KindPlacement, parsed.Kind)
	assert.WithinDuration(t, original.IssuedAt, parsed.IssuedAt, time.Second)
	assert.Equal(t, original.TTL, parsed.TTL)
}

func TestPaperAssignmentNilVariant(t *testing.T) {
	original := PaperAssignment{
		Kind:     model.KindProgress,
		IssuedAt: time.Now(),
		TTL:      72 * time.Hour,
	}

	token, err := SignPaperAssignment(original, testSecret)
	require.NoError(t, err)

	parsed, err := ParsePaperAssignment(token, testSecret)
	require.NoError(t, err)
	assert.Nil(t, parsed.Variant)
}

func TestParsePaperAssignmentRejectsWrongSecret(t *testing.T) {
	token, err := SignPaperAssignment(PaperAssignment{
		Kind:     model.KindPlacement,
		IssuedAt: time.Now(),
		TTL:      time.Hour,
	}, testSecret)
	require.NoError(t, err)

	_, err = ParsePaperAssignment(token, "another-secret-another-secret!!!")
	assert.Error(t, err)
}

func TestParsePaperAssignmentRejectsExpired(t *testing.T) {
	token, err := SignPaperAssignment(PaperAssignment{
		Kind:     model.KindPlacement,
		IssuedAt: time.Now().Add(-3 * time.Hour),
		TTL:      time.Hour,
	}, testSecret)
	require.NoError(t, err)

	_, err = ParsePaperAssignment(token, testSecret)
	assert.Error(t, err)
}

func TestPaperAssignmentExpired(t *testing.T) {
	issued := time.Now()
	p := PaperAssignment{IssuedAt: issued, TTL: 2 * time.Hour}

	assert.False(t, p.Expired(issued.Add(time.Hour)))
	assert.True(t, p.Expired(issued.Add(2*time.Hour+time.Second)))
}
