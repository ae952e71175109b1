package patient

import (
	"testing"
)

func TestPriorityTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   Level
		urgency int
		color   string
	}{
		{LevelRed, 1, "#dc2626"},
		{LevelYellow, 2, "#eab308"},
		{LevelGreen, 3, "#16a34a"},
		{LevelBlack, 4, "#18181b"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			t.Parallel()

			p := PriorityFor(tt.level)
			if p.Level != tt.level {
				t.Errorf("Level = %q, want %q", p.Level, tt.level)
			}
			if p.Urgency != tt.urgency {
				t.Errorf("Urgency = %d, want %d", p.Urgency, tt.urgency)
			}
			if p.Color != tt.color {
				t.Errorf("Color = %q, want %q", p.Color, tt.color)
			}
			if p.Description == "" || p.Icon == "" {
				t.Error("description and icon must be populated")
			}

			byUrgency, ok := PriorityForUrgency(tt.urgency)
			if !ok || byUrgency.Level != tt.level {
				t.Errorf("PriorityForUrgency(%d) = %v, %v", tt.urgency, byUrgency.Level, ok)
			}
		})
	}
}

func TestPriorityFor_UnknownLevelFallsBackToRed(t *testing.T) {
	t.Parallel()

	// A bad lookup must never under-triage.
	if p := PriorityFor("purple"); p.Level != LevelRed {
		t.Errorf("unknown level resolved to %q, want red", p.Level)
	}
	if p := PriorityFor(""); p.Level != LevelRed {
		t.Errorf("empty level resolved to %q, want red", p.Level)
	}
}

func TestPriorityForUrgency_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, u := range []int{0, 5, -1} {
		if _, ok := PriorityForUrgency(u); ok {
			t.Errorf("PriorityForUrgency(%d) ok = true, want false", u)
		}
	}
}

func TestLevels_UrgencyOrder(t *testing.T) {
	t.Parallel()

	want := []Level{LevelRed, LevelYellow, LevelGreen, LevelBlack}
	got := Levels()
	if len(got) != len(want) {
		t.Fatalf("Levels() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Levels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	for _, l := range Levels() {
		if !ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = false", l)
		}
	}
	if ValidLevel("blue") {
		t.Error(`ValidLevel("blue") = true`)
	}
}

func TestValidStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusActive, StatusTreated, StatusTransferred, StatusDischarged} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	for _, s := range []Status{"", "deceased", "Active"} {
		if ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = true", s)
		}
	}
}

func TestRecordClone_NoAliasing(t *testing.T) {
	t.Parallel()

	pulse := 88
	rr := 18
	cr := 1.5
	radial := RadialPresent
	mob := MobilityAmbulatory

	orig := &Record{
		ID:       "p-1",
		AgeGroup: AgeAdult,
		Vitals: Vitals{
			Pulse:           &pulse,
			Breathing:       BreathingNormal,
			Circulation:     CirculationNormal,
			Consciousness:   ConsciousnessAlert,
			RespiratoryRate: &rr,
			CapillaryRefill: &cr,
			RadialPulse:     &radial,
		},
		Mobility: &mob,
		Injuries: []string{"burn right hand"},
		Status:   StatusActive,
	}

	cp := orig.Clone()

	*cp.Vitals.Pulse = 200
	*cp.Vitals.RespiratoryRate = 40
	*cp.Vitals.CapillaryRefill = 3.0
	*cp.Vitals.RadialPulse = RadialAbsent
	*cp.Mobility = MobilityNonAmbulatory
	cp.Injuries[0] = "changed"

	if *orig.Vitals.Pulse != 88 {
		t.Errorf("pulse aliased: %d", *orig.Vitals.Pulse)
	}
	if *orig.Vitals.RespiratoryRate != 18 {
		t.Errorf("respiratory rate aliased: %d", *orig.Vitals.RespiratoryRate)
	}
	if *orig.Vitals.CapillaryRefill != 1.5 {
		t.Errorf("capillary refill aliased: %v", *orig.Vitals.CapillaryRefill)
	}
	if *orig.Vitals.RadialPulse != RadialPresent {
		t.Errorf("radial pulse aliased: %q", *orig.Vitals.RadialPulse)
	}
	if *orig.Mobility != MobilityAmbulatory {
		t.Errorf("mobility aliased: %q", *orig.Mobility)
	}
	if orig.Injuries[0] != "burn right hand" {
		t.Errorf("injuries aliased: %q", orig.Injuries[0])
	}
}

func TestRecordClone_NilOptionals(t *testing.T) {
	t.Parallel()

	orig := &Record{ID: "p-2", AgeGroup: AgeChild, Status: StatusActive}
	cp := orig.Clone()

	if cp.Mobility != nil || cp.Injuries != nil || cp.Vitals.Pulse != nil {
		t.Error("nil optionals must stay nil on clone")
	}
	if cp.ID != orig.ID {
		t.Errorf("ID = %q, want %q", cp.ID, orig.ID)
	}
}
