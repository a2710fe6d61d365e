package models

// PlanChange is one proposed change within a plan.
type PlanChange struct {
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
}

// Plan is the structured output of the planning phase. It is persisted as
// the content of a plan message and is immutable once approved or rejected.
type Plan struct {
	Summary        string       `json:"summary"`
	Changes        []PlanChange `json:"changes"`
	Considerations []string     `json:"considerations,omitempty"`
}
