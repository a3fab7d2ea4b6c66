package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound5(t *testing.T) {
	assert.Equal(t, 0, Round5(0))
	assert.Equal(t, 0, Round5(2.4))
	assert.Equal(t, 5, Round5(2.5))
	assert.Equal(t, 245, Round5(245.52))
	assert.Equal(t, 250, Round5(247.5))
	assert.Equal(t, 495, Round5(495))
}

func TestPredictScoreBounds(t *testing.T) {
	// 全错也不会低于量表下限
	zero := PredictScore(0, 0)
	assert.Equal(t, ScoreTriple{Overall: 10, Listening: 5, Reading: 5}, zero)

	// 全对封顶
	full := PredictScore(1, 1)
	assert.Equal(t, ScoreTriple{Overall: 990, Listening: 495, Reading: 495}, full)
}

func TestPredictScoreMidpoint(t *testing.T) {
	got := PredictScore(0.5, 0.5)
	assert.Equal(t, 250, got.Listening)
	assert.Equal(t, 250, got.Reading)
	assert.Equal(t, 500, got.Overall)
}

func TestPredictScoreRoundsSectionsBeforeSumming(t *testing.T) {
	// 0.496*495 = 245.52，分段先取整到 245，总分 490。
	// 如果先求和再取整会得到 245.52*2 = 491.04 -> 490，两种口径在这里
	// 恰好一致；换一组能区分的输入验证分段先取整的契约。
	got := PredictScore(0.496, 0.496)
	assert.Equal(t, 245, got.Listening)
	assert.Equal(t, 245, got.Reading)
	assert.Equal(t, got.Listening+got.Reading, got.Overall)

	// 0.503*495 = 248.985 -> 250；总分必须等于取整后的分段之和
	got = PredictScore(0.503, 0.496)
	assert.Equal(t, 250, got.Listening)
	assert.Equal(t, 245, got.Reading)
	assert.Equal(t, 495, got.Overall)
}

func TestPredictScoreAlwaysMultipleOfFive(t *testing.T) {
	for _, acc := range []float64{0, 0.01, 0.33, 0.5, 0.66, 0.99, 1} {
		got := PredictScore(acc, acc)
		assert.Zero(t, got.Listening%5)
		assert.Zero(t, got.Reading%5)
		assert.Zero(t, got.Overall%5)
	}
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 5, ClampInt(3, 5, 495))
	assert.Equal(t, 495, ClampInt(500, 5, 495))
	assert.Equal(t, 100, ClampInt(100, 5, 495))
}
