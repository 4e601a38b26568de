// Package persona generates simulation personas: model-backed synthesis
// against an environment, with a local sampler as fallback, plus
// demographic rebalancing so a population never collapses to one gender
// or occupation.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/agentsim/society/internal/agents"
	"github.com/agentsim/society/internal/emotion"
	"github.com/agentsim/society/internal/sim"
)

var firstNamesM = []string{
	"James", "John", "Robert", "Michael", "William", "David", "Richard", "Joseph",
	"Thomas", "Charles", "Christopher", "Daniel", "Matthew", "Anthony", "Mark", "Paul",
	"Andrew", "Joshua", "Steven", "Kevin", "Brian", "George", "Edward", "Timothy",
	"Jason", "Jeffrey", "Ryan", "Jacob", "Gary", "Nicholas", "Eric", "Jonathan",
	"Stephen", "Larry", "Justin", "Scott", "Brandon", "Benjamin", "Samuel", "Gregory",
}

var firstNamesF = []string{
	"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan", "Jessica",
	"Sarah", "Karen", "Nancy", "Lisa", "Margaret", "Betty", "Sandra", "Ashley", "Dorothy",
	"Kimberly", "Emily", "Donna", "Michelle", "Carol", "Amanda", "Melissa", "Deborah",
	"Stephanie", "Rebecca", "Sharon", "Laura", "Cynthia", "Kathleen", "Amy", "Shirley",
	"Angela", "Helen", "Anna", "Brenda", "Pamela", "Nicole", "Emma", "Olivia", "Sophia",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
	"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson",
	"White", "Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker",
	"Young", "Allen", "King", "Wright", "Scott", "Torres", "Nguyen", "Hill", "Flores",
}

var incomeOptions = []string{
	"<USD 1k/mo", "USD 1k-2k/mo", "USD 2k-5k/mo", "USD 5k-10k/mo", "USD 10k-20k/mo", ">USD 20k/mo",
}

var eduOptions = []string{
	"Middle school", "High school", "Vocational/Trade", "College", "Master's", "PhD",
}

var defaultRoles = []string{
	"High school student", "Teacher", "Administrator", "Security staff", "Cleaner",
	"Cafeteria worker", "Volunteer", "Retail clerk", "Passenger",
}

// Constraints shapes a generated population.
type Constraints struct {
	GenderRatio     map[string]float64 `json:"gender_ratio,omitempty"`
	AgeBuckets      map[string]float64 `json:"age_buckets,omitempty"`
	RoleMix         map[string]float64 `json:"role_mix,omitempty"`
	Locations       []string           `json:"locations,omitempty"`
	RelationDensity float64            `json:"relation_density,omitempty"`
}

func (c *Constraints) genderRatio() map[string]float64 {
	if c != nil && len(c.GenderRatio) > 0 {
		return c.GenderRatio
	}
	return map[string]float64{"Male": 0.49, "Female": 0.49, "Non-binary/Other": 0.02}
}

func (c *Constraints) ageBuckets() map[string]float64 {
	if c != nil && len(c.AgeBuckets) > 0 {
		return c.AgeBuckets
	}
	return map[string]float64{"14-18": 0.05, "19-25": 0.2, "26-40": 0.35, "41-60": 0.25, "61-75": 0.15}
}

// Chatter is the model dependency; satisfied by *agents.Generator.
type Chatter interface {
	ChatJSON(ctx context.Context, system string, messages []agents.Message, temperature float64, maxTokens int) (map[string]any, error)
}

// Generator synthesizes personas. A nil Chatter skips the model and uses
// only the local sampler.
type Generator struct {
	chat Chatter
	rng  *rand.Rand
}

func NewGenerator(chat Chatter) *Generator {
	return &Generator{
		chat: chat,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

const systemPrompt = "You are a strict persona generator. Output must be in ENGLISH only. " +
	"All names must be realistic English names (first + last), no placeholders, no duplicates. " +
	"Align personas to the given environment and constraints, and reflect demographic diversity."

const singleTemplate = `Generate ONE persona JSON in ENGLISH. Fill missing fields sensibly.
Return ONLY a JSON object, no code block, no extra text.

Context (optional): %s

Required JSON schema:
{
  "name": "English name (First Last), unique",
  "gender": "Male/Female/Non-binary (or similar in English)",
  "age": 14-75 (integer),
  "occupation": "Realistic job aligned with the environment",
  "income_level": "Income in English, e.g., 'USD 2k-5k/mo' or 'Dependent on parents'",
  "education": "Education level in English",
  "description": "1-2 sentences in English",
  "initial_memory": ["at least 3 short English items"],
  "initial_state": {"location": "must be one of environment locations if known, else 'Start'", "mood": "e.g., calm/curious/anxious"}
}`

const batchTemplate = `Generate %d persona JSON objects in ENGLISH only.

[Environment Title] %s
[Environment Description] %s
[Environment Rules] %s
[Population Constraints] %s

Hard requirements:
1) Names must be realistic English (First Last), ALL UNIQUE, no placeholder names.
2) Gender & age structure should approximately follow gender_ratio / age_buckets. If absent, assume ~50/50 gender, small share non-binary, plausible age distribution.
3) Occupation/role distribution should roughly follow role_mix; if absent, infer realistic roles from the environment.
4) initial_state.location must be chosen from the environment's location list (if not provided, infer 6-12 plausible locations first and then use them).
5) Every field must be in English. Avoid collapse to the same gender or job.

Return ONLY a JSON object of the form {"personas": [...]} where the array has length %d, each element with the schema above. No explanation, no code fences.`

// GenerateOne synthesizes a single persona from optional hints, falling
// back to a locally sampled persona on model failure.
func (g *Generator) GenerateOne(ctx context.Context, hints map[string]any) (*sim.AgentPersona, error) {
	fallbackName, _ := hints["name"].(string)
	if g.chat != nil {
		hintText := "(none)"
		if len(hints) > 0 {
			raw, err := json.MarshalIndent(hints, "", "  ")
			if err == nil {
				hintText = string(raw)
			}
		}
		data, err := g.chat.ChatJSON(ctx, systemPrompt,
			[]agents.Message{{Role: "user", Content: fmt.Sprintf(singleTemplate, hintText)}},
			0.5, 800)
		if err == nil {
			return g.normalize(data, fallbackName), nil
		}
	}
	personas := g.bootstrap(1, nil, nil)
	if fallbackName != "" {
		personas[0].Name = fallbackName
	}
	return personas[0], nil
}

// GenerateForEnvironment synthesizes count personas for an environment.
// Model output short of count is topped up locally, then rebalanced
// against the constraints.
func (g *Generator) GenerateForEnvironment(ctx context.Context, count int, env *sim.EnvSpec, diversityHint string, constraints *Constraints) ([]*sim.AgentPersona, error) {
	if count <= 0 {
		return nil, nil
	}

	var personas []*sim.AgentPersona
	if g.chat != nil {
		constraintsText := "{}"
		if constraints != nil {
			if raw, err := json.Marshal(constraints); err == nil {
				constraintsText = string(raw)
			}
		}
		prompt := fmt.Sprintf(batchTemplate, count, env.Title, env.Prompt, renderRules(env.Rules), constraintsText, count)
		if diversityHint != "" {
			prompt += "\n[Additional diversity hint] " + diversityHint
		}
		maxTokens := 1500 + count*220
		if maxTokens > 6000 {
			maxTokens = 6000
		}
		data, err := g.chat.ChatJSON(ctx, systemPrompt,
			[]agents.Message{{Role: "user", Content: prompt}},
			0.6, maxTokens)
		if err == nil {
			if items, ok := data["personas"].([]any); ok {
				for _, raw := range items {
					if item, ok := raw.(map[string]any); ok {
						personas = append(personas, g.normalize(item, ""))
					}
					if len(personas) == count {
						break
					}
				}
			}
		}
	}

	if len(personas) < count {
		personas = append(personas, g.bootstrap(count-len(personas), constraints, env)...)
	}
	return g.rebalance(personas, count, constraints), nil
}

func renderRules(rules []string) string {
	if len(rules) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + r)
	}
	return b.String()
}

func newID() string {
	return "agent_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (g *Generator) sampleName(genderHint string) string {
	var first string
	switch {
	case strings.HasPrefix(strings.ToLower(genderHint), "f"):
		first = firstNamesF[g.rng.IntN(len(firstNamesF))]
	case strings.HasPrefix(strings.ToLower(genderHint), "m"):
		first = firstNamesM[g.rng.IntN(len(firstNamesM))]
	default:
		all := len(firstNamesM) + len(firstNamesF)
		if i := g.rng.IntN(all); i < len(firstNamesM) {
			first = firstNamesM[i]
		} else {
			first = firstNamesF[i-len(firstNamesM)]
		}
	}
	last := lastNames[g.rng.IntN(len(lastNames))]
	if g.rng.Float64() < 0.15 {
		return fmt.Sprintf("%s %c. %s", first, 'A'+rune(g.rng.IntN(26)), last)
	}
	return first + " " + last
}

func (g *Generator) weightedChoice(weights map[string]float64, fallback string) string {
	if len(weights) == 0 {
		return fallback
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return fallback
	}
	r := g.rng.Float64() * total
	var acc float64
	last := fallback
	for k, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = k
		if r <= acc {
			return k
		}
	}
	return last
}

var placeholderNames = map[string]bool{
	"zhang wei": true, "wang wei": true, "li na": true, "li lei": true, "test user": true,
}

// normalize coerces one model-produced object into a valid persona,
// replacing placeholder or single-word names and filling missing fields.
func (g *Generator) normalize(data map[string]any, fallbackName string) *sim.AgentPersona {
	str := func(key, fallback string) string {
		if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	gender := normalizeGender(str("gender", ""))
	if gender == "" {
		gender = g.weightedChoice(map[string]float64{"Male": 0.5, "Female": 0.5}, "Male")
	}

	name := str("name", fallbackName)
	if name == "" || placeholderNames[strings.ToLower(name)] || !strings.Contains(name, " ") {
		name = g.sampleName(gender)
	}

	age := 18 + g.rng.IntN(38)
	if v, ok := data["age"].(float64); ok && v >= 1 {
		age = int(v)
	}

	memory := []string{"Cares about rules", "Sensitive to peer opinions", "Willing to cooperate"}
	if items, ok := data["initial_memory"].([]any); ok {
		parsed := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				parsed = append(parsed, strings.TrimSpace(s))
			}
		}
		if len(parsed) > 0 {
			memory = parsed
		}
	}

	state := map[string]any{"location": "Start", "mood": "calm"}
	if m, ok := data["initial_state"].(map[string]any); ok {
		for k, v := range m {
			state[k] = v
		}
		if _, ok := state["location"].(string); !ok {
			state["location"] = "Start"
		}
		if _, ok := state["mood"].(string); !ok {
			state["mood"] = "calm"
		}
	}

	description := str("description", "Ordinary resident; cooperative and family-oriented.")
	ensureEmotion(state, description)

	return &sim.AgentPersona{
		ID:            newID(),
		Name:          name,
		Gender:        gender,
		Age:           age,
		Occupation:    str("occupation", "Service worker"),
		IncomeLevel:   str("income_level", "USD 2k-5k/mo"),
		Education:     str("education", eduOptions[1+g.rng.IntN(len(eduOptions)-1)]),
		Description:   description,
		InitialMemory: memory,
		InitialState:  state,
	}
}

// ensureEmotion seeds initial_state.emotion from the mood and personality
// text when the model did not provide one.
func ensureEmotion(state map[string]any, description string) {
	if _, ok := state["emotion"].(map[string]any); ok {
		return
	}
	mood, _ := state["mood"].(string)
	profile := emotion.FromContext(fmt.Sprintf("Initial mood: %s, Personality: %s", mood, description))
	state["emotion"] = profile
}

func normalizeGender(raw string) string {
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(strings.ToLower(raw), "m"):
		return "Male"
	case strings.HasPrefix(strings.ToLower(raw), "f"):
		return "Female"
	default:
		return "Non-binary/Other"
	}
}

// bootstrap samples n personas locally without the model.
func (g *Generator) bootstrap(n int, constraints *Constraints, env *sim.EnvSpec) []*sim.AgentPersona {
	locations := constraintLocations(constraints)
	if len(locations) == 0 {
		locations = inferLocations(env)
	}

	out := make([]*sim.AgentPersona, 0, n)
	for i := 0; i < n; i++ {
		gender := g.weightedChoice(constraints.genderRatio(), "Male")
		role := defaultRoles[g.rng.IntN(len(defaultRoles))]
		if constraints != nil && len(constraints.RoleMix) > 0 {
			role = g.weightedChoice(constraints.RoleMix, role)
		}
		location := "Start"
		if len(locations) > 0 {
			location = locations[g.rng.IntN(len(locations))]
		}
		mood := []string{"calm", "neutral", "curious"}[g.rng.IntN(3)]
		description := role + "; ordinary resident; cooperative."
		state := map[string]any{"location": location, "mood": mood}
		ensureEmotion(state, description)

		out = append(out, &sim.AgentPersona{
			ID:            newID(),
			Name:          g.sampleName(gender),
			Gender:        gender,
			Age:           g.sampleAge(constraints.ageBuckets()),
			Occupation:    role,
			IncomeLevel:   incomeOptions[g.rng.IntN(len(incomeOptions))],
			Education:     eduOptions[1+g.rng.IntN(len(eduOptions)-1)],
			Description:   description,
			InitialMemory: []string{"Follows rules", "Seeks social acceptance", "Watches authority signals"},
			InitialState:  state,
		})
	}
	return out
}

func (g *Generator) sampleAge(buckets map[string]float64) int {
	bucket := g.weightedChoice(buckets, "26-40")
	var lo, hi int
	if _, err := fmt.Sscanf(bucket, "%d-%d", &lo, &hi); err != nil || hi <= lo {
		lo, hi = 26, 40
	}
	return lo + g.rng.IntN(hi-lo+1)
}

func constraintLocations(c *Constraints) []string {
	if c == nil {
		return nil
	}
	return c.Locations
}

var knownLocations = []string{
	"Classroom", "Hallway", "Cafeteria", "Gym", "Playground", "Dorm",
	"Administration building", "School gate", "Auditorium", "Library",
	"Stairwell", "Lobby", "Registration desk", "Pharmacy", "ER", "Imaging",
	"Lab", "Concourse", "Security checkpoint", "Platform", "Inside train",
}

// inferLocations scans the environment text for known location names,
// falling back to a generic campus set.
func inferLocations(env *sim.EnvSpec) []string {
	if env == nil {
		return nil
	}
	text := strings.ToLower(env.Prompt + " " + strings.Join(env.Rules, " "))
	var out []string
	for _, loc := range knownLocations {
		if strings.Contains(text, strings.ToLower(loc)) {
			out = append(out, loc)
		}
	}
	if len(out) == 0 {
		out = []string{"Classroom", "Hallway", "Cafeteria", "Library", "Gym", "Auditorium", "School gate", "Courtyard"}
	}
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}

// rebalance enforces unique names and nudges the gender, role and location
// distributions toward the constraints.
func (g *Generator) rebalance(personas []*sim.AgentPersona, count int, constraints *Constraints) []*sim.AgentPersona {
	if len(personas) == 0 {
		return g.bootstrap(count, constraints, nil)
	}
	if len(personas) > count {
		personas = personas[:count]
	}

	seen := make(map[string]bool, len(personas))
	for _, p := range personas {
		if p.Name == "" || seen[p.Name] || !strings.Contains(p.Name, " ") {
			p.Name = g.sampleName(p.Gender)
		}
		for seen[p.Name] {
			p.Name = g.sampleName(p.Gender)
		}
		seen[p.Name] = true
	}

	g.rebalanceField(personas, constraints.genderRatio(),
		func(p *sim.AgentPersona) string { return p.Gender },
		func(p *sim.AgentPersona, gender string) {
			p.Gender = gender
			p.Name = g.sampleName(gender)
		})

	if constraints != nil && len(constraints.RoleMix) > 0 {
		g.rebalanceField(personas, constraints.RoleMix,
			func(p *sim.AgentPersona) string { return p.Occupation },
			func(p *sim.AgentPersona, role string) { p.Occupation = role })
	}

	if locs := constraintLocations(constraints); len(locs) > 0 {
		valid := make(map[string]bool, len(locs))
		for _, l := range locs {
			valid[l] = true
		}
		for _, p := range personas {
			loc, _ := p.InitialState["location"].(string)
			if !valid[loc] {
				p.InitialState["location"] = locs[g.rng.IntN(len(locs))]
			}
		}
	}
	return personas
}

// rebalanceField reassigns members of over-represented values to
// under-represented ones until the observed counts match the rounded
// targets as closely as possible.
func (g *Generator) rebalanceField(personas []*sim.AgentPersona, ratio map[string]float64, get func(*sim.AgentPersona) string, set func(*sim.AgentPersona, string)) {
	count := len(personas)
	targets := make(map[string]int, len(ratio))
	total := 0
	for k, r := range ratio {
		targets[k] = int(r*float64(count) + 0.5)
		total += targets[k]
	}
	// Rounding drift goes to the heaviest bucket.
	if total != count {
		heaviest := ""
		for k := range ratio {
			if heaviest == "" || ratio[k] > ratio[heaviest] {
				heaviest = k
			}
		}
		targets[heaviest] += count - total
	}

	current := make(map[string]int, len(targets))
	for _, p := range personas {
		current[get(p)]++
	}
	for value, target := range targets {
		for current[value] < target {
			donor := g.pickDonor(personas, targets, current, get)
			if donor == nil {
				return
			}
			current[get(donor)]--
			set(donor, value)
			current[value]++
		}
	}
}

func (g *Generator) pickDonor(personas []*sim.AgentPersona, targets map[string]int, current map[string]int, get func(*sim.AgentPersona) string) *sim.AgentPersona {
	for _, p := range personas {
		v := get(p)
		if current[v] > targets[v] {
			return p
		}
	}
	return nil
}
