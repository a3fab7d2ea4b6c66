package service

import (
	"testing"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/internal/model"
	"toeic_prep_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testPaperService() *PaperService {
	return &PaperService{Cfg: &config.Config{JWT: config.JWTConfig{Secret: testSecret}}}
}

func TestReuseOrNilAcceptsValidToken(t *testing.T) {
	s := testPaperService()
	variant := 2
	token, err := util.SignPaperAssignment(util.PaperAssignment{
		Variant:  &variant,
		Kind:     model.KindPlacement,
		IssuedAt: time.Now(),
		TTL:      2 * time.Hour,
	}, testSecret)
	require.NoError(t, err)

	got := s.reuseOrNil(token, model.KindPlacement)
	require.NotNil(t, got)
	require.NotNil(t, got.Variant)
	assert.Equal(t, 2, *got.Variant)
}

func TestReuseOrNilRejectsKindMismatch(t *testing.T) {
	s := testPaperService()
	token, err := util.SignPaperAssignment(util.PaperAssignment{
		Kind:     model.KindProgress,
		IssuedAt: time.Now(),
		TTL:      time.Hour,
	}, testSecret)
	require.NoError(t, err)

	assert.Nil(t, s.reuseOrNil(token, model.KindPlacement))
}

func TestReuseOrNilRejectsExpiredAndGarbage(t *testing.T) {
	s := testPaperService()

	expired, err := util.SignPaperAssignment(util.PaperAssignment{
		Kind:     model.KindPlacement,
		IssuedAt: time.Now().Add(-3 * time.Hour),
		TTL:      time.Hour,
	}, testSecret)
	require.NoError(t, err)

	assert.Nil(t, s.reuseOrNil(expired, model.KindPlacement))
	assert.Nil(t, s.reuseOrNil("not-a-token", model.KindPlacement))
	assert.Nil(t, s.reuseOrNil("", model.KindPlacement))
}
