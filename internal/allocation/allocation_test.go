package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAllocate_FullCoverage(t *testing.T) {
	drafts := []Draft{{ID: "A", Desired: d("100")}, {ID: "B", Desired: d("50")}}
	got := Allocate(d("0"), d("200"), drafts)
	if !got["A"].Equal(d("100")) || !got["B"].Equal(d("50")) {
		t.Fatalf("expected full desired quantities, got %+v", got)
	}
}

func TestAllocate_ZeroShadowAvail(t *testing.T) {
	drafts := []Draft{{ID: "A", Desired: d("100")}}
	got := Allocate(d("200"), d("200"), drafts)
	if !got["A"].IsZero() {
		t.Fatalf("expected zero allocation, got %v", got["A"])
	}
}

func TestAllocate_ZeroDesiredTotal(t *testing.T) {
	drafts := []Draft{{ID: "A", Desired: d("0")}, {ID: "B", Desired: d("0")}}
	got := Allocate(d("0"), d("200"), drafts)
	if !got["A"].IsZero() || !got["B"].IsZero() {
		t.Fatalf("expected all zero, got %+v", got)
	}
}

func TestAllocate_ProportionalWithCarry(t *testing.T) {
	// shadowAvail = 120 - 0 = 120; desired A=100, B=50 (total 150).
	// A gets floor8(120*100/150)=80, B (last) gets remainder 40.
	drafts := []Draft{{ID: "A", Desired: d("100")}, {ID: "B", Desired: d("50")}}
	got := Allocate(d("0"), d("120"), drafts)
	if !got["A"].Equal(d("80")) {
		t.Errorf("A: expected 80, got %v", got["A"])
	}
	if !got["B"].Equal(d("40")) {
		t.Errorf("B: expected 40, got %v", got["B"])
	}
	sum := got["A"].Add(got["B"])
	if !sum.Equal(d("120")) {
		t.Errorf("expected exact conservation of 120, got %v", sum)
	}
}

func TestAllocate_ConservationProperty(t *testing.T) {
	cases := []struct {
		primary, approved string
		desired           []string
	}{
		{"0", "200", []string{"100", "100"}},
		{"50", "120", []string{"30", "45", "60"}},
		{"200", "120", []string{"100"}},
		{"0", "1", []string{"3", "3", "3"}},
	}
	for _, c := range cases {
		drafts := make([]Draft, len(c.desired))
		for i, ds := range c.desired {
			drafts[i] = Draft{ID: string(rune('A' + i)), Desired: d(ds)}
		}
		got := Allocate(d(c.primary), d(c.approved), drafts)

		shadowAvail := d(c.approved).Sub(d(c.primary))
		if shadowAvail.IsNegative() {
			shadowAvail = d("0")
		}
		total := d("0")
		for _, v := range got {
			total = total.Add(v)
		}
		if total.GreaterThan(shadowAvail) {
			t.Errorf("case %+v: sum %v exceeds shadowAvail %v", c, total, shadowAvail)
		}
		for id, v := range got {
			if v.IsNegative() {
				t.Errorf("case %+v: negative allocation for %s: %v", c, id, v)
			}
		}
	}
}

func TestAllocate_EmptyDrafts(t *testing.T) {
	got := Allocate(d("0"), d("100"), nil)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
