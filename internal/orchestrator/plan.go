package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hatchpad/hatchpad/internal/models"
)

// PlanParseError means the agent's output matched neither parse strategy.
// The session moves to error and the user must resubmit.
type PlanParseError struct {
	Raw string
	Err error
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("could not parse plan from agent output: %v", e.Err)
}

func (e *PlanParseError) Unwrap() error { return e.Err }

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	rawObjectRe   = regexp.MustCompile(`(?s)\{.*\}`)

	// planMarkerRe detects the plan marker in partial, still-streaming
	// output, tolerating whitespace variations.
	planMarkerRe = regexp.MustCompile(`"type"\s*:\s*"plan"`)
)

// looksLikePlan reports whether accumulated partial output carries the plan
// marker. This is a streaming heuristic only; authoritative parsing happens
// in ParsePlan once the stream completes.
func looksLikePlan(text string) bool {
	return planMarkerRe.MatchString(text)
}

// planPayload is the wire shape the agent is instructed to produce.
type planPayload struct {
	Type           string              `json:"type"`
	Summary        string              `json:"summary"`
	Changes        []models.PlanChange `json:"changes"`
	Considerations []string            `json:"considerations"`
}

// ParsePlan extracts a Plan from completed agent output. Two strategies are
// tried in order: a fenced ```json code block, then a regex-located raw
// JSON object. Both are heuristic by nature and deliberately contained
// here; anything that gets past them must still unmarshal and carry a
// non-empty summary.
func ParsePlan(text string) (*models.Plan, error) {
	candidate := ""
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if m := rawObjectRe.FindString(text); m != "" {
		candidate = m
	}
	if candidate == "" {
		return nil, &PlanParseError{Raw: text, Err: fmt.Errorf("no JSON object found")}
	}

	var payload planPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, &PlanParseError{Raw: text, Err: err}
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, &PlanParseError{Raw: text, Err: fmt.Errorf("plan has no summary")}
	}

	return &models.Plan{
		Summary:        payload.Summary,
		Changes:        payload.Changes,
		Considerations: payload.Considerations,
	}, nil
}

// truncateLabel shortens a plan summary into a checkpoint label. The cut is
// on a rune boundary so multibyte summaries stay valid UTF-8.
func truncateLabel(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
