package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/skills"
)

// buildPlanPrompt constructs the system and user prompts for the planning
// phase. The system prompt explicitly forbids code output: planning
// produces a reviewable plan, never an implementation.
func buildPlanPrompt(repoName, request string, matched []skills.Skill) (system, user string) {
	system = `You are a senior engineer planning a feature for a non-technical user. Study the request and produce an implementation plan.

Return ONLY a JSON object with these fields:
- "type": always the string "plan"
- "summary": one or two sentences describing what will be built
- "changes": an array of objects, each with "description" (what will change) and optionally "files" (paths likely affected)
- "considerations": optional array of trade-offs or risks worth flagging

Rules:
- Do NOT write any code. No snippets, no diffs, no file contents. The plan describes changes in plain language only.
- Keep each change description to one or two sentences
- List at most ten changes; merge related ones
- Return valid JSON only, no explanation outside the JSON`

	var sb strings.Builder
	sb.WriteString("Repository: ")
	sb.WriteString(repoName)
	sb.WriteString("\n\n")
	for _, sk := range matched {
		sb.WriteString("Guidance (")
		sb.WriteString(sk.Name)
		sb.WriteString("):\n")
		sb.WriteString(strings.TrimSpace(sk.Instructions))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Feature request:\n")
	sb.WriteString(request)
	user = sb.String()
	return
}

// buildExecutePrompt constructs the build-phase prompt. The approved plan
// is restated verbatim so the agent implements exactly what was reviewed.
func buildExecutePrompt(plan *models.Plan) (system, user string) {
	system = `You are a senior engineer implementing an approved plan inside a development sandbox. Work through the plan change by change.

As you work, narrate progress in short lines. When you modify a file, emit a line of the form:
FILE: <path> - <what changed>

Stay within the approved plan. If something in the plan turns out to be impossible, say so and stop rather than improvising a different design.`

	planJSON, _ := json.MarshalIndent(plan, "", "  ")

	var sb strings.Builder
	sb.WriteString("Implement this approved plan exactly as written:\n\n")
	sb.Write(planJSON)
	user = sb.String()
	return
}
