package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRecord_JSONKeepsFieldOrder(t *testing.T) {
	var r Record
	r.ID = "N1__A1_1"
	r.SourceLine = 2
	r.AnomalyProbability = ProbabilityHigh
	r.AnomalyTypes = []AnomalyType{AnomalyWeight, AnomalyRoute}
	r.SetColumn(ColTotalWeight, 12.5)
	r.SetColumn(ColMessageCode, "A1")
	r.Set("Примечание", "срочно")
	r.Set("Доп", "")

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"message_code":"A1","total_weight":12.5,"Примечание":"срочно","Доп":"","id":"N1__A1_1","source_line":2,"anomaly_probability":"high","anomaly_types":["weight","route"]}`
	if string(raw) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", raw, want)
	}

	var back Record
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	again, _ := json.Marshal(back)
	if string(again) != want {
		t.Errorf("round trip =\n%s\nwant\n%s", again, want)
	}
	if back.Number(ColTotalWeight) != 12.5 || !back.HasType(AnomalyRoute) {
		t.Errorf("decoded record lost values: %+v", back)
	}
}

func TestRecord_UnmarshalRejectsNonObject(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`[1,2]`), &r); err == nil {
		t.Error("expected error for array input")
	}
}

func TestRecord_SetCopiesExtra(t *testing.T) {
	var a Record
	a.Set("x", "1")
	b := a
	b.Set("x", "2")
	b.Set("y", "3")

	if got := a.GetString("x"); got != "1" {
		t.Errorf("original changed to %q after copy was modified", got)
	}
	if _, ok := a.Get("y"); ok {
		t.Error("original gained a field added to the copy")
	}
}

func TestRecord_Risk(t *testing.T) {
	tests := []struct {
		probability AnomalyProbability
		types       []AnomalyType
		want        RiskLevel
	}{
		{ProbabilityHigh, []AnomalyType{AnomalyWeight, AnomalyTime}, RiskCritical},
		{ProbabilityHigh, []AnomalyType{AnomalyWeight}, RiskHigh},
		{ProbabilityHigh, nil, RiskHigh},
		{ProbabilityElevated, []AnomalyType{AnomalyWeight, AnomalyTime}, RiskMedium},
		{ProbabilityMedium, nil, RiskLow},
		{ProbabilityLow, nil, RiskMinimal},
		{"", nil, RiskMinimal},
	}

	for _, tt := range tests {
		t.Run(string(tt.probability)+"/"+string(tt.want), func(t *testing.T) {
			r := Record{AnomalyProbability: tt.probability, AnomalyTypes: tt.types}
			if got := r.Risk(); got != tt.want {
				t.Errorf("Risk() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecord_SetDerivedKeys(t *testing.T) {
	var r Record
	r.Set(KeyAnomalyTypes, "weight, time")
	r.Set(KeySourceLine, "7")
	r.Set(KeyAnomalyProbability, "elevated")
	r.Set("total_weight", "12.5")

	if len(r.AnomalyTypes) != 2 || r.AnomalyTypes[1] != AnomalyTime {
		t.Errorf("AnomalyTypes = %v", r.AnomalyTypes)
	}
	if r.SourceLine != 7 {
		t.Errorf("SourceLine = %d", r.SourceLine)
	}
	if r.AnomalyProbability != ProbabilityElevated {
		t.Errorf("AnomalyProbability = %q", r.AnomalyProbability)
	}
	if r.Number(ColTotalWeight) != 12.5 {
		t.Errorf("total_weight = %v", r.Number(ColTotalWeight))
	}
	if got := strings.Join(r.Keys(), ","); got != "total_weight,source_line,anomaly_probability,anomaly_types" {
		t.Errorf("Keys() = %s", got)
	}
}

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		v         float64
		wantProb  AnomalyProbability
		wantTypes []AnomalyType
	}{
		{0.10, ProbabilityLow, []AnomalyType{}},
		{0.35, ProbabilityLow, []AnomalyType{}},
		{0.50, ProbabilityMedium, []AnomalyType{}},
		{0.70, ProbabilityElevated, []AnomalyType{}},
		{0.82, ProbabilityElevated, []AnomalyType{AnomalyWeight}},
		{0.88, ProbabilityHigh, []AnomalyType{AnomalyWeight, AnomalyRoute}},
		{0.95, ProbabilityHigh, []AnomalyType{AnomalyWeight, AnomalyTime, AnomalyRoute}},
	}

	for _, tt := range tests {
		p, types := ClassifyValue(tt.v)
		if p != tt.wantProb {
			t.Errorf("ClassifyValue(%v) probability = %q, want %q", tt.v, p, tt.wantProb)
		}
		if types == nil {
			t.Errorf("ClassifyValue(%v) types is nil", tt.v)
		}
		if strings.Join(typeStrings(types), ",") != strings.Join(typeStrings(tt.wantTypes), ",") {
			t.Errorf("ClassifyValue(%v) types = %v, want %v", tt.v, types, tt.wantTypes)
		}
	}
}

func TestSeededClassifierIsReproducible(t *testing.T) {
	a, b := NewSeededClassifier(42), NewSeededClassifier(42)
	for i := 0; i < 50; i++ {
		pa, ta := a.Classify(Record{})
		pb, tb := b.Classify(Record{})
		if pa != pb || len(ta) != len(tb) {
			t.Fatalf("draw %d differs: %s%v vs %s%v", i, pa, ta, pb, tb)
		}
	}
}

func TestFixedClassifier(t *testing.T) {
	c := FixedClassifier{Probability: "bogus", Types: []AnomalyType{AnomalyDuplicate}}
	p, types := c.Classify(Record{})
	if p != ProbabilityLow {
		t.Errorf("invalid fixed probability should fall back to low, got %q", p)
	}
	types[0] = AnomalyTime
	if c.Types[0] != AnomalyDuplicate {
		t.Error("Classify must return a copy of Types")
	}
}

func typeStrings(types []AnomalyType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
