package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

const agentSystemPrompt = `You are simulating ONE specific agent inside a shared world.
ALL OUTPUT MUST BE IN ENGLISH ONLY.
Decide the agent's immediate intention for this tick (may include moving), then output STRICT JSON for this agent.

# Output schema (single JSON object)
{
  "action": "action in English",
  "speech": "spoken words in English; empty string if none",
  "state": { "key": "value" },
  "thoughts": "inner monologue in English",
  "location": "resulting location at the end of this tick (keep if not moving)",
  "memory": ["memory items for this tick, in English"]
}

Rules:
- English only. No code fences. Exactly one JSON object.
- Respect environment rules & local visibility.
- No secret info from other minds.`

const encounterSystemPrompt = `You simulate interactions among multiple agents at the SAME location inside a shared world.
OUTPUT MUST BE IN ENGLISH ONLY.
Output STRICT JSON ONLY per the schema. Never include code fences or extra text.
KEEP RESPONSES CONCISE TO AVOID TRUNCATION.

# Output schema (JSON object)
{
  "location": "current place",
  "notes": "brief summary (max 50 words)",
  "agents": [
    {
      "agent_id": "a1",
      "action": "brief action (max 10 words)",
      "speech": "speech (max 20 words, empty if not ALLOWED_SPEAKER)",
      "thoughts": "brief thought (max 15 words)",
      "location": "same or new",
      "memory": ["brief items (max 3)"]
    }
  ]
}

# Hard Constraints
- Only agents listed in ALLOWED_SPEAKERS may produce non-empty 'speech'.
- Prefer dialogue/coordination pairs from ALLOWED_PAIRS; avoid others unless unavoidable.
- Respect the environment rules & plausible social behavior.
- Keep each person's update coherent with their last known state.
- BREVITY IS CRITICAL: use short phrases, not full sentences.`

func renderRules(rules []string) string {
	if len(rules) == 0 {
		return "(none)"
	}
	lines := make([]string, len(rules))
	for i, r := range rules {
		lines[i] = "- " + r
	}
	return strings.Join(lines, "\n")
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func renderAgentPrompt(agent *AgentPersona, env *EnvSpec, tick int, visible string, accMemory []string, lastState map[string]any, lastLocation string) string {
	return fmt.Sprintf(`[Environment]
Title: %s
Description: %s
Rules:
%s

[Visible public context at your location last tick]
%s

[You are the agent]
ID: %s
Name: %s
Persona: %s
Initial Memory: %s
Accumulated Memory (previous ticks): %s
Last State: %s
Last Location: %s

[Tick]
Current tick = %d

Output strictly the JSON per schema above (English only). You may decide to move to a reasonable place.`,
		env.Title, env.Prompt, renderRules(env.Rules),
		visible,
		agent.ID, agent.Name, agent.Description,
		mustJSON(agent.InitialMemory), mustJSON(accMemory),
		mustJSON(lastState), lastLocation,
		tick)
}

func snapshotLine(last *TickOutput) string {
	keys := make([]string, 0, len(last.State))
	for k := range last.State {
		keys = append(keys, k)
	}
	return fmt.Sprintf("- %s: last_action=%q, last_speech=%q, state_keys=%s, location=%q",
		last.AgentID, last.Action, last.Speech, mustJSON(keys), last.Location)
}

func renderEncounterPrompt(env *EnvSpec, location, localVisible string, participants []*TickOutput, relationSummary []string, allowedSpeakers []string, allowedPairs [][2]string) string {
	snapshot := make([]string, len(participants))
	for i, p := range participants {
		snapshot[i] = snapshotLine(p)
	}
	snapshotTxt := strings.Join(snapshot, "\n")
	if snapshotTxt == "" {
		snapshotTxt = "(none)"
	}

	relTxt := strings.Join(relationSummary, "\n")
	if relTxt == "" {
		relTxt = "(no direct relations known)"
	}

	speakersTxt := strings.Join(allowedSpeakers, ", ")
	if speakersTxt == "" {
		speakersTxt = "(empty)"
	}

	return fmt.Sprintf(`[Environment]
Title: %s
Description: %s
Rules:
%s

[Location] %s

[Public info from previous tick at this location]
%s

[Participants (last-tick snapshot)]
%s

[Relation summary (between participants)]
%s

[Hard constraints]
- ALLOWED_SPEAKERS: %s
- ALLOWED_PAIRS: %s

Simulate this tick's encounter in English only. Output the JSON object strictly as specified above.`,
		env.Title, env.Prompt, renderRules(env.Rules),
		location,
		localVisible,
		snapshotTxt,
		relTxt,
		speakersTxt, mustJSON(allowedPairs))
}
