package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmotionLabel is the closed set of classes an emotion classifier may report.
type EmotionLabel string

// Canonical emotion labels accepted on analysis results.
const (
	EmotionNeutral EmotionLabel = "neutral"
	EmotionCalm    EmotionLabel = "calm"
	EmotionJoy     EmotionLabel = "joy"
	EmotionSadness EmotionLabel = "sadness"
	EmotionStress  EmotionLabel = "stress"
	EmotionFear    EmotionLabel = "fear"
	EmotionAnger   EmotionLabel = "anger"
	EmotionFatigue EmotionLabel = "fatigue"
)

var emotionDisplayNames = map[EmotionLabel]string{
	EmotionNeutral: "Neutral state",
	EmotionCalm:    "Calm",
	EmotionJoy:     "Joy",
	EmotionSadness: "Sadness",
	EmotionStress:  "Stress",
	EmotionFear:    "Fear",
	EmotionAnger:   "Anger",
	EmotionFatigue: "Fatigue",
}

// EmotionLabels returns every supported label in presentation order.
func EmotionLabels() []EmotionLabel {
	return []EmotionLabel{
		EmotionNeutral,
		EmotionCalm,
		EmotionJoy,
		EmotionSadness,
		EmotionStress,
		EmotionFear,
		EmotionAnger,
		EmotionFatigue,
	}
}

// Valid reports whether the label belongs to the closed set.
func (l EmotionLabel) Valid() bool {
	_, ok := emotionDisplayNames[l]
	return ok
}

// DisplayName returns the human readable label.
func (l EmotionLabel) DisplayName() string {
	if name, ok := emotionDisplayNames[l]; ok {
		return name
	}
	return string(l)
}

// ParseEmotionLabel converts free text into a label, rejecting anything outside the set.
func ParseEmotionLabel(raw string) (EmotionLabel, error) {
	label := EmotionLabel(strings.ToLower(strings.TrimSpace(raw)))
	if !label.Valid() {
		return "", &ConstraintViolationError{
			Entity: EntityAnalysisResult,
			Field:  "emotion_label",
			Reason: fmt.Sprintf("unknown label %q", raw),
		}
	}
	return label, nil
}

// UnmarshalJSON rejects labels outside the closed set so invalid values never enter the store.
func (l *EmotionLabel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseEmotionLabel(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
