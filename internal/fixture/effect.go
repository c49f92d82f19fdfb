package fixture

// Effect is a sensor special effect.
type Effect int

const (
	EffectNone Effect = iota
	EffectNegative
	EffectGrayscale
	EffectRedTint
	EffectGreenTint
	EffectBlueTint
	EffectSepia
)

var effectNames = []string{"none", "negative", "grayscale", "red_tint", "green_tint", "blue_tint", "sepia"}

// EffectFromRaw maps a channel value to an effect. Values past Sepia select
// no effect.
func EffectFromRaw(b byte) Effect {
	if int(b) > int(EffectSepia) {
		return EffectNone
	}
	return Effect(b)
}

func (e Effect) String() string {
	if e < EffectNone || e > EffectSepia {
		return "none"
	}
	return effectNames[e]
}
