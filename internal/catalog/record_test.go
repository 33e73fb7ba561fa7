package catalog

import "testing"

func TestScoredRecordPromotesRecordFields(t *testing.T) {
	sr := ScoredRecord{
		Record: Record{
			PartNumber:  "763A00-11330C00/A",
			ContextType: "220V 3 Phase Power",
			Specs:       map[string]any{"output_torque_nm": 40.0},
		},
		Similarity: 0.92,
	}

	if sr.PartNumber != "763A00-11330C00/A" {
		t.Errorf("PartNumber = %q, want promoted record field", sr.PartNumber)
	}
	if sr.ContextType != "220V 3 Phase Power" {
		t.Errorf("ContextType = %q, want promoted record field", sr.ContextType)
	}
	if sr.Specs["output_torque_nm"] != 40.0 {
		t.Errorf("Specs = %v, want promoted record field", sr.Specs)
	}
}
