package vibe

import "sort"

// Score 计算 round_half_up(100*p/(p+n))，结果限制在 [0,100]；总数为 0 时返回 50。
// 全程整数运算，避免浮点舍入带来的不可复现。
func Score(positive, negative int64) int {
	if positive < 0 {
		positive = 0
	}
	if negative < 0 {
		negative = 0
	}
	total := positive + negative
	if total == 0 {
		return NeutralScore
	}
	s := (200*positive + total) / (2 * total)
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return int(s)
}

// Tier 展示用档位
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierMixed     Tier = "mixed"
	TierPoor      Tier = "poor"
)

// Classify 自上而下匹配阈值，边界值归入更高档位
func Classify(score int) Tier {
	switch {
	case score >= 80:
		return TierExcellent
	case score >= 60:
		return TierGood
	case score >= 40:
		return TierMixed
	default:
		return TierPoor
	}
}

// Rank 按 VibeScore 降序返回副本；同分保持输入（创建）顺序。
func Rank(entities []Entity) []Entity {
	out := append([]Entity(nil), entities...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VibeScore > out[j].VibeScore
	})
	return out
}
