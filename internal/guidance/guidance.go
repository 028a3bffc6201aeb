package guidance

import (
	"embed"
	"encoding/json"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Message IDs understood by the coach. Extractors pick IDs from threshold
// checks; the coach only renders text.
const (
	MsgBreathRateHigh   = "breath.rate_high"
	MsgBreathRateLow    = "breath.rate_low"
	MsgBreathIrregular  = "breath.irregular"
	MsgBreathShallow    = "breath.shallow"
	MsgBreathSteady     = "breath.steady"
	MsgBreathAboveUsual = "breath.above_usual"
	MsgBreathBelowUsual = "breath.below_usual"

	MsgPostureIntro     = "posture.intro"
	MsgPostureSpine     = "posture.spine"
	MsgPostureHeadTilt  = "posture.head_tilt"
	MsgPostureHeadTurn  = "posture.head_turn"
	MsgPostureShoulders = "posture.shoulders"
	MsgPostureExcellent = "posture.excellent"

	MsgRestlessSettle    = "restless.settle"
	MsgRestlessEyes      = "restless.eyes"
	MsgRestlessBreathing = "restless.breathing"
	MsgRestlessNoFace    = "restless.no_face"
)

// Baseline is a caller-supplied summary of the user's historical sessions,
// used to personalize advice. Nil means no history.
type Baseline struct {
	AverageRate   float64
	TypicalRhythm string
	SessionCount  int
}

// Coach renders localized guidance strings. Safe for concurrent use.
type Coach struct {
	localizer *i18n.Localizer
}

// NewCoach builds a coach for the preferred language tags, falling back to
// English. Unknown tags are skipped by the matcher.
func NewCoach(langs ...string) (*Coach, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, err
		}
	}

	langs = append(langs, language.English.String())
	return &Coach{localizer: i18n.NewLocalizer(bundle, langs...)}, nil
}

// Text renders the message with the given ID. A missing message renders as
// the ID itself so callers never receive an empty string.
func (c *Coach) Text(id string) string {
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		return id
	}
	return msg
}

// Textf renders a templated message.
func (c *Coach) Textf(id string, data map[string]interface{}) string {
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

// RateAdvice compares the observed breathing rate against the baseline and
// returns a personalized message, or "" when there is no meaningful history
// or deviation.
func (c *Coach) RateAdvice(rate float64, base *Baseline) string {
	if base == nil || base.SessionCount < 3 || base.AverageRate <= 0 {
		return ""
	}
	data := map[string]interface{}{
		"Rate":    int(rate + 0.5),
		"Typical": int(base.AverageRate + 0.5),
	}
	switch {
	case rate > base.AverageRate*1.3:
		return c.Textf(MsgBreathAboveUsual, data)
	case rate < base.AverageRate*0.7:
		return c.Textf(MsgBreathBelowUsual, data)
	}
	return ""
}
