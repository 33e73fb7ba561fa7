// Package catalog defines the actuator catalog domain model shared by the
// exact-match store, the semantic index, and the routing agent.
package catalog

// Record is one catalog entry: a part number, its electrical/environmental
// variant descriptor (context type), and the named specification fields.
// Records are immutable once ingested and owned exclusively by the stores;
// the agent only reads them.
type Record struct {
	// PartNumber is the base part number, unique within a context variant
	// (e.g. "763A00-11330C00/A").
	PartNumber string `json:"part_number"`

	// ContextType is the voltage/phase/enclosure descriptor
	// (e.g. "220V 3 Phase Power").
	ContextType string `json:"context_type"`

	// Specs holds the named specification fields exactly as ingested
	// (output torque, duty cycle, motor power, operating speed, ...).
	// Numeric values are surfaced verbatim, no unit conversion.
	Specs map[string]any `json:"specs"`
}

// ScoredRecord pairs a record with a vector similarity score.
// Higher is more similar.
type ScoredRecord struct {
	Record

	// Similarity is the vector similarity score. Higher is more similar.
	Similarity float64
}

// prioritySpecFields lists the specification keys shown first when a record
// is rendered, in display order. Everything else follows alphabetically.
var prioritySpecFields = []struct {
	Key   string
	Label string
}{
	{"output_torque_nm", "Output Torque (Nm)"},
	{"on_off_output_torque_nm", "On/Off Output Torque (Nm)"},
	{"modulating_output_torque_nm", "Modulating Output Torque (Nm)"},
	{"duty_cycle_54pct", "Duty Cycle 54%"},
	{"on_off_duty_cycle_54pct", "On/Off Duty Cycle 54%"},
	{"modulating_duty_cycle_54pct", "Modulating Duty Cycle 54%"},
	{"motor_power_watts", "Motor Power (Watts)"},
	{"operating_speed_sec_60_hz", "Operating Speed 60Hz (sec)"},
	{"operating_speed_sec_50_hz", "Operating Speed 50Hz (sec)"},
	{"cycles_per_hour_cycles", "Cycles per Hour"},
	{"starts_per_hour_starts", "Starts per Hour"},
}

// PrioritySpecKeys returns the specification keys that should lead a
// rendered record, in display order.
func PrioritySpecKeys() []string {
	keys := make([]string, len(prioritySpecFields))
	for i, f := range prioritySpecFields {
		keys[i] = f.Key
	}
	return keys
}

// SpecLabel returns the display label for a specification key.
// Keys without a curated label fall back to title-cased words.
func SpecLabel(key string) string {
	for _, f := range prioritySpecFields {
		if f.Key == key {
			return f.Label
		}
	}
	return titleWords(key)
}

// titleWords converts "operating_speed_sec" to "Operating Speed Sec".
func titleWords(key string) string {
	out := make([]byte, 0, len(key))
	upper := true
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '_' {
			out = append(out, ' ')
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
