package emotion

import "strings"

// Named emotional states used to seed generated personas and to label
// interaction events.
var templates = map[string]Profile{
	"neutral": {Context: "neutral emotional state"},
	"calm": {
		Valence: 0.3, Arousal: -0.3, Dominance: 0.2, Trust: 0.4, Anxiety: -0.4,
		Context: "calm and relaxed",
	},
	"excited": {
		Valence: 0.8, Arousal: 0.8, Dominance: 0.4, Joy: 0.8, Anticipation: 0.6, Hope: 0.5,
		Context: "excited and energetic",
	},
	"anxious": {
		Valence: -0.4, Arousal: 0.7, Dominance: -0.3, Anxiety: 0.8, Fear: 0.5, Anticipation: -0.4,
		Context: "anxious and worried",
	},
	"angry": {
		Valence: -0.7, Arousal: 0.8, Dominance: 0.6, Anger: 0.9, Disgust: 0.4,
		Context: "angry and frustrated",
	},
	"sad": {
		Valence: -0.8, Arousal: -0.4, Dominance: -0.5, Sadness: 0.9, Hope: -0.5, Optimism: -0.6,
		Context: "sad and melancholic",
	},
	"fearful": {
		Valence: -0.6, Arousal: 0.8, Dominance: -0.7, Fear: 0.9, Anxiety: 0.7, Surprise: -0.3,
		Context: "fearful and scared",
	},
	"surprised": {
		Valence: 0.3, Arousal: 0.9, Surprise: 0.9, Anticipation: 0.4,
		Context: "surprised and amazed",
	},
	"trusting": {
		Valence: 0.5, Arousal: -0.2, Dominance: 0.3, Trust: 0.8, Gratitude: 0.4,
		Context: "trusting and faithful",
	},
	"suspicious": {
		Valence: -0.4, Arousal: 0.3, Dominance: -0.2, Trust: -0.7, Anxiety: 0.5, Anticipation: -0.3,
		Context: "suspicious and distrustful",
	},
	"hopeful": {
		Valence: 0.6, Arousal: 0.3, Dominance: 0.2, Hope: 0.8, Optimism: 0.6, Anticipation: 0.5,
		Context: "hopeful and optimistic",
	},
	"grateful": {
		Valence: 0.7, Arousal: 0.1, Dominance: 0.1, Gratitude: 0.9, Joy: 0.5, Trust: 0.5,
		Context: "grateful and appreciative",
	},
	"supportive": {
		Valence: 0.6, Arousal: 0.2, Dominance: 0.4, Trust: 0.6, Gratitude: 0.3, Hope: 0.4,
		Context: "supportive and encouraging",
	},
}

// FromTemplate builds a profile from a named template. Unknown names yield
// the neutral profile. The context argument, when non-empty, replaces the
// template's default context string.
func FromTemplate(name, context string) Profile {
	p, ok := templates[name]
	if !ok {
		p = templates["neutral"]
	}
	if context != "" {
		p.Context = context
	}
	return New(p)
}

// moodCues maps free-text cues onto template names. Checked in addition to
// literal template names when deriving a profile from context text.
var moodCues = map[string]string{
	"relaxed":    "calm",
	"peaceful":   "calm",
	"energetic":  "excited",
	"curious":    "excited",
	"worried":    "anxious",
	"nervous":    "anxious",
	"stressed":   "anxious",
	"frustrated": "angry",
	"furious":    "angry",
	"depressed":  "sad",
	"melancholy": "sad",
	"scared":     "fearful",
	"afraid":     "fearful",
	"amazed":     "surprised",
	"optimistic": "hopeful",
	"positive":   "hopeful",
	"thankful":   "grateful",
	"distrust":   "suspicious",
	"cynical":    "suspicious",
}

// FromContext derives a profile from free-form text, typically an initial
// mood plus a personality description. Every template whose name or cue
// appears in the text contributes equally; no match yields neutral.
func FromContext(context string) Profile {
	lower := strings.ToLower(context)
	seen := make(map[string]bool)
	var matched []Profile
	consider := func(name string) {
		if !seen[name] {
			seen[name] = true
			matched = append(matched, templates[name])
		}
	}
	for name := range templates {
		if name != "neutral" && strings.Contains(lower, name) {
			consider(name)
		}
	}
	for cue, name := range moodCues {
		if strings.Contains(lower, cue) {
			consider(name)
		}
	}
	if len(matched) == 0 {
		return FromTemplate("neutral", context)
	}

	blended := matched[0]
	for i := 1; i < len(matched); i++ {
		next := matched[i]
		// Running average keeps every matched template weighted equally.
		w := 1.0 / float64(i+1)
		blended = blended.Blend(&next, w)
	}
	blended.Context = context
	return New(blended)
}

// TemplateNames lists the available template names.
func TemplateNames() []string {
	out := make([]string, 0, len(templates))
	for name := range templates {
		out = append(out, name)
	}
	return out
}
