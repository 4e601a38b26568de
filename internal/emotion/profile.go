// Package emotion provides a multi-dimensional numeric emotion model:
// the PAD dimensions (pleasure/arousal/dominance), basic emotions, social
// emotions, and composite emotions, plus a derived scalar intensity.
package emotion

import (
	"math"
	"sort"
)

// Profile is a point in the 19-dimension affect space plus metadata.
// PAD dimensions, trust and surprise live in [-1, 1]; the remaining
// dimensions live in [-0.5, 1], where negative values mean the opposite
// affect (negative joy is dejection, negative fear is boldness).
type Profile struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`

	Joy      float64 `json:"joy"`
	Sadness  float64 `json:"sadness"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Surprise float64 `json:"surprise"`
	Disgust  float64 `json:"disgust"`

	Trust        float64 `json:"trust"`
	Anticipation float64 `json:"anticipation"`

	Optimism  float64 `json:"optimism"`
	Anxiety   float64 `json:"anxiety"`
	Guilt     float64 `json:"guilt"`
	Pride     float64 `json:"pride"`
	Shame     float64 `json:"shame"`
	Envy      float64 `json:"envy"`
	Gratitude float64 `json:"gratitude"`
	Hope      float64 `json:"hope"`

	Intensity float64 `json:"intensity"`
	Context   string  `json:"context,omitempty"`
}

// New clamps the profile's dimensions into range and derives intensity.
func New(p Profile) Profile {
	p.normalize()
	return p
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (p *Profile) normalize() {
	p.Valence = clampRange(p.Valence, -1, 1)
	p.Arousal = clampRange(p.Arousal, -1, 1)
	p.Dominance = clampRange(p.Dominance, -1, 1)
	p.Trust = clampRange(p.Trust, -1, 1)
	p.Surprise = clampRange(p.Surprise, -1, 1)

	for _, f := range []*float64{
		&p.Joy, &p.Sadness, &p.Anger, &p.Fear, &p.Disgust,
		&p.Anticipation, &p.Optimism, &p.Anxiety, &p.Guilt,
		&p.Pride, &p.Shame, &p.Envy, &p.Gratitude, &p.Hope,
	} {
		*f = clampRange(*f, -0.5, 1)
	}

	p.Intensity = p.computeIntensity()
}

// computeIntensity blends the PAD vector magnitude with the mean absolute
// value of the eight basic/social emotions.
func (p *Profile) computeIntensity() float64 {
	pad := math.Sqrt(p.Valence*p.Valence+p.Arousal*p.Arousal+p.Dominance*p.Dominance) / math.Sqrt(3)

	basics := []float64{p.Joy, p.Sadness, p.Anger, p.Fear, p.Surprise, p.Disgust, p.Trust, p.Anticipation}
	var sum float64
	for _, v := range basics {
		sum += math.Abs(v)
	}
	return (pad + sum/float64(len(basics))) / 2
}

// Dimensions returns the raw values of all 19 affect dimensions in a fixed
// order.
func (p *Profile) Dimensions() []float64 {
	return []float64{
		p.Valence, p.Arousal, p.Dominance,
		p.Joy, p.Sadness, p.Anger, p.Fear, p.Surprise, p.Disgust,
		p.Trust, p.Anticipation, p.Optimism, p.Anxiety,
		p.Guilt, p.Pride, p.Shame, p.Envy, p.Gratitude, p.Hope,
	}
}

// Similarity maps the Euclidean distance between two profiles to [0, 1],
// where 1 means identical.
func (p *Profile) Similarity(other *Profile) float64 {
	a, b := p.Dimensions(), other.Dimensions()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	distance := math.Sqrt(sum)
	maxDistance := math.Sqrt(float64(len(a)) * 4) // every dimension spans at most 2
	return clampRange(1-distance/maxDistance, 0, 1)
}

// Blend linearly interpolates toward other; weight 1 yields other.
func (p *Profile) Blend(other *Profile, weight float64) Profile {
	a, b := p.Dimensions(), other.Dimensions()
	mix := func(i int) float64 { return a[i]*(1-weight) + b[i]*weight }
	return New(Profile{
		Valence: mix(0), Arousal: mix(1), Dominance: mix(2),
		Joy: mix(3), Sadness: mix(4), Anger: mix(5), Fear: mix(6),
		Surprise: mix(7), Disgust: mix(8), Trust: mix(9), Anticipation: mix(10),
		Optimism: mix(11), Anxiety: mix(12), Guilt: mix(13), Pride: mix(14),
		Shame: mix(15), Envy: mix(16), Gratitude: mix(17), Hope: mix(18),
		Context: "blend of '" + p.Context + "' and '" + other.Context + "'",
	})
}

type namedValue struct {
	name  string
	value float64
}

func (p *Profile) named() []namedValue {
	return []namedValue{
		{"joy", p.Joy}, {"sadness", p.Sadness}, {"anger", p.Anger},
		{"fear", p.Fear}, {"surprise", p.Surprise}, {"disgust", p.Disgust},
		{"trust", p.Trust}, {"anticipation", p.Anticipation},
		{"optimism", p.Optimism}, {"anxiety", p.Anxiety}, {"guilt", p.Guilt},
		{"pride", p.Pride}, {"shame", p.Shame}, {"envy", p.Envy},
		{"gratitude", p.Gratitude}, {"hope", p.Hope},
	}
}

// PrimaryEmotion names the strongest affect dimension above a 0.2 magnitude
// threshold, or "neutral".
func (p *Profile) PrimaryEmotion() string {
	significant := make([]namedValue, 0, 16)
	for _, nv := range p.named() {
		if math.Abs(nv.value) > 0.2 {
			significant = append(significant, nv)
		}
	}
	if len(significant) == 0 {
		return "neutral"
	}
	sort.SliceStable(significant, func(i, j int) bool {
		return math.Abs(significant[i].value) > math.Abs(significant[j].value)
	})
	return significant[0].name
}

// Quadrant names the PAD valence/arousal quadrant.
func (p *Profile) Quadrant() string {
	switch {
	case p.Valence > 0.2 && p.Arousal > 0.2:
		return "excited"
	case p.Valence > 0.2 && p.Arousal < -0.2:
		return "relaxed"
	case p.Valence < -0.2 && p.Arousal > 0.2:
		return "anxious"
	case p.Valence < -0.2 && p.Arousal < -0.2:
		return "depressed"
	default:
		return "neutral"
	}
}
