package service

import "math"

// 托业量表常数
const (
	SectionScoreMax = 495
	SectionScoreMin = 5
	OverallScoreMax = 990
	OverallScoreMin = 10
)

// ScoreTriple 预测分三元组，均为 5 的倍数
type ScoreTriple struct {
	Overall   int `json:"overall"`
	Listening int `json:"listening"`
	Reading   int `json:"reading"`
}

// Round5 四舍五入到最近的 5 的倍数
func Round5(x float64) int {
	return int(math.Round(x/5)) * 5
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PredictScore 由听力、阅读正确率映射到托业量表分。
// 先分段取整再求和，总分与分段分保持一致的展示口径。
func PredictScore(listeningAcc, readingAcc float64) ScoreTriple {
	listening := ClampInt(Round5(listeningAcc*SectionScoreMax), SectionScoreMin, SectionScoreMax)
	reading := ClampInt(Round5(readingAcc*SectionScoreMax), SectionScoreMin, SectionScoreMax)
	overall := ClampInt(Round5(float64(listening+reading)), OverallScoreMin, OverallScoreMax)
	return ScoreTriple{Overall: overall, Listening: listening, Reading: reading}
}
