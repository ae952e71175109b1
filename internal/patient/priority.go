package patient

// Level is the four-color START triage priority.
type Level string

const (
	LevelRed    Level = "red"
	LevelYellow Level = "yellow"
	LevelGreen  Level = "green"
	LevelBlack  Level = "black"
)

// Priority describes one entry of the fixed triage priority table.
// Urgency ranks 1 (most urgent) to 4 and doubles as the plaintext sort
// key stored beside the encrypted record.
type Priority struct {
	Level       Level  `json:"level"`
	Description string `json:"description"`
	Urgency     int    `json:"urgency"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

// priorities is the fixed lookup table. Order follows urgency rank.
var priorities = [...]Priority{
	{Level: LevelRed, Description: "Immediate: life-threatening, needs care now", Urgency: 1, Color: "#dc2626", Icon: "alert-octagon"},
	{Level: LevelYellow, Description: "Delayed: serious but can wait", Urgency: 2, Color: "#eab308", Icon: "clock"},
	{Level: LevelGreen, Description: "Minor: walking wounded", Urgency: 3, Color: "#16a34a", Icon: "walk"},
	{Level: LevelBlack, Description: "Expectant: deceased or beyond help", Urgency: 4, Color: "#18181b", Icon: "x-octagon"},
}

// PriorityFor returns the table entry for the given level. Unknown
// levels return the red entry so a bad lookup can never under-triage.
func PriorityFor(l Level) Priority {
	for _, p := range priorities {
		if p.Level == l {
			return p
		}
	}
	return priorities[0]
}

// PriorityForUrgency returns the table entry for an urgency rank.
func PriorityForUrgency(u int) (Priority, bool) {
	for _, p := range priorities {
		if p.Urgency == u {
			return p, true
		}
	}
	return Priority{}, false
}

// Levels returns all levels in urgency order.
func Levels() []Level {
	out := make([]Level, 0, len(priorities))
	for _, p := range priorities {
		out = append(out, p.Level)
	}
	return out
}

// ValidLevel reports whether l is one of the four triage levels.
func ValidLevel(l Level) bool {
	for _, p := range priorities {
		if p.Level == l {
			return true
		}
	}
	return false
}
