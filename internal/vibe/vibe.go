// Package vibe 实现 vibe score 引擎：由正/负反应计数推导 0-100 的口碑分，
// 并保证同一用户对同一实体只能反应一次。
package vibe

import (
	"strings"
	"time"
)

// NeutralScore 尚无任何反应时的默认分（未评判，而不是最差）
const NeutralScore = 50

// Kind 可被反应的实体类型
type Kind string

const (
	KindPost  Kind = "post"
	KindTrack Kind = "track"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool { return k == KindPost || k == KindTrack }

// Polarity 反应极性
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

func (p Polarity) Valid() bool { return p == Positive || p == Negative }

// 反应标签只用于统计与展示，不参与计分
const (
	LabelLove   = "love"
	LabelFire   = "fire"
	LabelEnergy = "energy"
	LabelStar   = "star"
	LabelMeh    = "meh"
)

var labelsByPolarity = map[Polarity][]string{
	Positive: {LabelLove, LabelFire, LabelEnergy, LabelStar},
	Negative: {LabelMeh},
}

// Labels returns the labels accepted for a polarity, default first.
func Labels(p Polarity) []string {
	return append([]string(nil), labelsByPolarity[p]...)
}

// NormalizeLabel 空标签取该极性的默认值；未知标签或极性不匹配时返回 false。
func NormalizeLabel(p Polarity, label string) (string, bool) {
	allowed, ok := labelsByPolarity[p]
	if !ok {
		return "", false
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return allowed[0], true
	}
	for _, l := range allowed {
		if l == label {
			return l, true
		}
	}
	return "", false
}

// EntityRef 指向一个 post 或 track
type EntityRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Counts 正/负反应计数，只增不减
type Counts struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
}

func (c Counts) Total() int64 { return c.Positive + c.Negative }

// Score 按当前计数重新推导分数
func (c Counts) Score() int { return Score(c.Positive, c.Negative) }

// Add returns the counts after one more reaction of polarity p.
func (c Counts) Add(p Polarity) Counts {
	switch p {
	case Positive:
		c.Positive++
	case Negative:
		c.Negative++
	}
	return c
}

// Entity 可反应实体的快照；VibeScore 永远由 Counts 推导。
type Entity struct {
	Ref       EntityRef `json:"ref"`
	Counts    Counts    `json:"counts"`
	VibeScore int       `json:"vibe_score"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntity 新建实体：计数为 0，分数为中性默认值 50
func NewEntity(ref EntityRef, createdAt time.Time) Entity {
	return Entity{Ref: ref, VibeScore: NeutralScore, CreatedAt: createdAt}
}

// WithCounts returns a copy of e carrying c and the score derived from it.
func (e Entity) WithCounts(c Counts) Entity {
	e.Counts = c
	e.VibeScore = c.Score()
	return e
}

// Tier 分数所在档位
func (e Entity) Tier() Tier { return Classify(e.VibeScore) }

// Reaction 用户对实体的一次性反应，创建后不再修改
type Reaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Entity    EntityRef `json:"entity"`
	Polarity  Polarity  `json:"polarity"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}
