package pipeline

import "testing"

func sampleResult() *ValidationResult {
	return &ValidationResult{
		ValidRows: []ValidRow{
			{RowNumber: 1, Data: RawRow{"name": StringValue("Widget")}},
			{RowNumber: 3, Data: RawRow{"name": StringValue("Gadget")}},
		},
		ErrorRows: []ErrorRow{
			{RowNumber: 2, Data: RawRow{"name": StringValue("")}, Errors: []string{"name is required"}},
			{RowNumber: 4, Data: RawRow{"name": StringValue("Dup")}, Errors: []string{"duplicate sku"}},
		},
		TotalRows:  4,
		ValidCount: 2,
		ErrorCount: 2,
	}
}

func checkPartition(t *testing.T, r *ValidationResult) {
	t.Helper()

	if r.ValidCount != len(r.ValidRows) {
		t.Errorf("ValidCount = %d, but %d valid rows", r.ValidCount, len(r.ValidRows))
	}
	if r.ErrorCount != len(r.ErrorRows) {
		t.Errorf("ErrorCount = %d, but %d error rows", r.ErrorCount, len(r.ErrorRows))
	}
	if r.ValidCount+r.ErrorCount != r.TotalRows {
		t.Errorf("ValidCount(%d) + ErrorCount(%d) != TotalRows(%d)", r.ValidCount, r.ErrorCount, r.TotalRows)
	}

	seen := make(map[int]int)
	for _, vr := range r.ValidRows {
		seen[vr.RowNumber]++
	}
	for _, er := range r.ErrorRows {
		seen[er.RowNumber]++
	}
	for num, count := range seen {
		if count != 1 {
			t.Errorf("row %d appears %d times across the partition", num, count)
		}
	}
}

func TestPromote(t *testing.T) {
	r := sampleResult()
	edited := RawRow{"name": StringValue("Fixed")}

	if !r.promote(2, edited) {
		t.Fatal("promote(2) = false, want true")
	}

	checkPartition(t, r)
	if r.ValidCount != 3 || r.ErrorCount != 1 {
		t.Errorf("counts after promote = %d/%d, want 3/1", r.ValidCount, r.ErrorCount)
	}

	// The promoted entry keeps its original row number and carries the
	// edited data.
	found := false
	for _, vr := range r.ValidRows {
		if vr.RowNumber == 2 {
			found = true
			if vr.Data["name"] != StringValue("Fixed") {
				t.Errorf("promoted row data = %#v, want edited data", vr.Data)
			}
		}
	}
	if !found {
		t.Error("promoted row 2 not found in valid set")
	}

	// The untouched error row is unaffected.
	if r.ErrorRows[0].RowNumber != 4 {
		t.Errorf("remaining error row = %d, want 4", r.ErrorRows[0].RowNumber)
	}
}

func TestPromote_UnknownRow(t *testing.T) {
	r := sampleResult()
	if r.promote(99, RawRow{}) {
		t.Error("promote(99) = true, want false")
	}
	checkPartition(t, r)
}

func TestReplaceErrors(t *testing.T) {
	r := sampleResult()

	if !r.replaceErrors(2, []string{"still bad", "and worse"}) {
		t.Fatal("replaceErrors(2) = false, want true")
	}

	checkPartition(t, r)
	if r.ValidCount != 2 || r.ErrorCount != 2 {
		t.Errorf("counts changed on replace: %d/%d, want 2/2", r.ValidCount, r.ErrorCount)
	}

	er, ok := r.errorRow(2)
	if !ok {
		t.Fatal("row 2 missing from error set")
	}
	// Old messages are discarded, not appended.
	if len(er.Errors) != 2 || er.Errors[0] != "still bad" || er.Errors[1] != "and worse" {
		t.Errorf("errors = %v, want exactly the new messages", er.Errors)
	}
}

func TestValidationResultClone(t *testing.T) {
	r := sampleResult()
	c := r.clone()

	r.promote(2, RawRow{"name": StringValue("Fixed")})
	r.ErrorRows[0].Errors[0] = "mutated"

	if c.ValidCount != 2 || c.ErrorCount != 2 {
		t.Errorf("clone counts = %d/%d, want 2/2", c.ValidCount, c.ErrorCount)
	}
	if len(c.ErrorRows) != 2 {
		t.Fatalf("clone has %d error rows, want 2", len(c.ErrorRows))
	}
	if c.ErrorRows[0].Errors[0] != "name is required" {
		t.Errorf("clone error mutated: %q", c.ErrorRows[0].Errors[0])
	}
}
