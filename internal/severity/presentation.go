package severity

// Presentation is the display hint for a tier.
type Presentation struct {
	Label string // Short status text
	Icon  string // Icon class name
	Class string // Color class: primary, normal, warning, danger
}

var presentations = map[Tier]Presentation{
	TierLow:      {Label: "low", Icon: "fas fa-arrow-down", Class: "primary"},
	TierNormal:   {Label: "normal", Icon: "fas fa-check-circle", Class: "normal"},
	TierElevated: {Label: "elevated", Icon: "fas fa-exclamation-circle", Class: "warning"},
	TierHigh:     {Label: "high", Icon: "fas fa-exclamation-triangle", Class: "danger"},
	TierCritical: {Label: "too high", Icon: "fas fa-exclamation-triangle", Class: "danger"},
}

// Presentation returns the display hint for the tier.
func (t Tier) Presentation() Presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return Presentation{Label: string(t), Icon: "fas fa-question-circle", Class: "normal"}
}

// Label returns the short status text for the tier.
func (t Tier) Label() string {
	return t.Presentation().Label
}
