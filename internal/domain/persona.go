package domain

// Persona is an evaluation stance. The oracle receives the stance text and
// focus dimensions verbatim; the role selects the persona, never string
// matching on free text.
type Persona struct {
	// Role identifies the persona.
	Role JudgeRole `json:"role"`

	// Stance describes how the judge should approach the document.
	Stance string `json:"stance"`

	// FocusDimensions lists the dimensions the judge scrutinizes most.
	// An empty list means equal attention to every dimension.
	FocusDimensions []string `json:"focus_dimensions,omitempty"`
}

// BuildJudgmentRequest returns an initial-phase request for document.
// Callers adjust Phase and the discussion or tiebreak context as needed.
func (p Persona) BuildJudgmentRequest(document string, rubric *Rubric) JudgmentRequest {
	return JudgmentRequest{
		Document: document,
		Persona:  p,
		Rubric:   rubric,
		Phase:    PhaseInitial,
	}
}

// Focuses reports whether dimension is one of the persona's focus dimensions.
func (p Persona) Focuses(dimension string) bool {
	for _, d := range p.FocusDimensions {
		if d == dimension {
			return true
		}
	}
	return false
}

// SkepticPersona looks for weaknesses in evidence and reasoning.
func SkepticPersona() Persona {
	return Persona{
		Role: RoleSkeptic,
		Stance: "You are a rigorous skeptic. Assume every claim is unproven until the text supports it. " +
			"Score only what the document earns and name each gap you find.",
		FocusDimensions: []string{DimensionEvidenceQuality, DimensionArgumentStrength, DimensionCompleteness},
	}
}

// AdvocatePersona credits what the document does well.
func AdvocatePersona() Persona {
	return Persona{
		Role: RoleAdvocate,
		Stance: "You are a constructive advocate for the author. Identify the document's strengths and " +
			"judge it by what it sets out to do, while still flagging real problems.",
		FocusDimensions: []string{DimensionOriginality, DimensionClarity, DimensionStyle},
	}
}

// GeneralistPersona weighs every dimension evenly as a typical reader.
func GeneralistPersona() Persona {
	return Persona{
		Role: RoleGeneralist,
		Stance: "You are an informed general reader. Weigh every dimension evenly and judge whether the " +
			"document serves its intended audience.",
	}
}

// ArbiterPersona resolves disputes between the primary judges.
func ArbiterPersona() Persona {
	return Persona{
		Role: RoleArbiter,
		Stance: "You are the arbiter. The primary judges disagree. For each disputed dimension compare " +
			"their positions against the text and give a definitive score with resolution reasoning. " +
			"Score undisputed dimensions normally.",
	}
}

// PrimaryPanel returns the fixed three-persona primary panel in panel order.
func PrimaryPanel() []Persona {
	return []Persona{SkepticPersona(), AdvocatePersona(), GeneralistPersona()}
}

// PersonaFor returns the built-in persona for role.
func PersonaFor(role JudgeRole) (Persona, bool) {
	switch role {
	case RoleSkeptic:
		return SkepticPersona(), true
	case RoleAdvocate:
		return AdvocatePersona(), true
	case RoleGeneralist:
		return GeneralistPersona(), true
	case RoleArbiter:
		return ArbiterPersona(), true
	default:
		return Persona{}, false
	}
}
