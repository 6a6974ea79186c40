package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/recipeflow/recipeflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RecipeID", id.NewRecipeID, "rcp_"},
		{"StepID", id.NewStepID, "step_"},
		{"ExecutionID", id.NewExecutionID, "exec_"},
		{"ArtifactID", id.NewArtifactID, "art_"},
		{"ScheduleID", id.NewScheduleID, "sched_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewRecipeID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip mismatch: %q != %q", parsed.String(), orig.String())
	}
	if parsed.Prefix() != id.PrefixRecipe {
		t.Errorf("prefix = %q, want %q", parsed.Prefix(), id.PrefixRecipe)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	execID := id.NewExecutionID()

	if _, err := id.ParseRecipeID(execID.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID

	if !i.IsNil() {
		t.Error("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID string = %q, want empty", i.String())
	}

	v, err := i.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID Value = %v, want nil", v)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	orig := wrapper{ID: id.NewScheduleID()}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID.String() != orig.ID.String() {
		t.Errorf("JSON round trip mismatch: %q != %q", decoded.ID.String(), orig.ID.String())
	}
}

func TestScan(t *testing.T) {
	orig := id.NewArtifactID()

	var scanned id.ID
	if err := scanned.Scan(orig.String()); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Errorf("scanned = %q, want %q", scanned.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning nil should yield the Nil ID")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
