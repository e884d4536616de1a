package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClaim_ImageRefs(t *testing.T) {
	c := &Claim{
		Text:   "Photo <image:2> shows the flood, see also <image:2> and <image:1>",
		Images: []Image{{ID: 1, Reference: "a.jpg"}, {ID: 3, Reference: "c.jpg"}},
	}

	got := c.ImageRefs()
	want := []string{"<image:2>", "<image:1>", "<image:3>"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ref %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if !c.HasImage() {
		t.Error("expected claim to have an image")
	}
	if _, ok := c.ResolveImage("<image:3>"); !ok {
		t.Error("expected <image:3> to resolve")
	}
	if _, ok := c.ResolveImage("<image:2>"); ok {
		t.Error("expected <image:2> not to resolve, it has no attachment")
	}
}

func TestClaim_String(t *testing.T) {
	date := time.Date(2023, time.March, 5, 0, 0, 0, 0, time.UTC)
	c := &Claim{
		Text:    `The "Sahara" is the largest desert`,
		Context: &ClaimContext{Author: "Jane", Date: &date, Origin: "twitter"},
	}

	got := c.String()
	want := "Claim: \"The \"Sahara\" is the largest desert\"\nAuthor: Jane\nDate: March 05, 2023\nOrigin: twitter"
	if got != want {
		t.Errorf("unexpected claim block:\n%s\nwant:\n%s", got, want)
	}
}

func TestNewClaim_AssignsID(t *testing.T) {
	a := NewClaim("x")
	b := NewClaim("x")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}

	c := &Claim{ID: "keep"}
	c.EnsureID()
	if c.ID != "keep" {
		t.Errorf("EnsureID overwrote existing ID: %s", c.ID)
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
		ok   bool
	}{
		{"Supported", LabelSupported, true},
		{"  REFUTED. ", LabelRefuted, true},
		{"Not Enough Information", LabelNEI, true},
		{"conflicting evidence/cherrypicking", LabelConflicting, true},
		{"cherry-picking", LabelCherryPicking, true},
		{"maybe", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseLabel(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseLabel(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLabelSet(t *testing.T) {
	set := NewLabelSet(LabelSupported, LabelRefuted, LabelSupported)
	if len(set) != 2 {
		t.Fatalf("expected duplicates removed, got %v", set)
	}

	withNEI := set.With(LabelNEI)
	if !withNEI.Contains(LabelNEI) {
		t.Error("expected NEI after With")
	}
	if set.Contains(LabelNEI) {
		t.Error("With must not modify the receiver")
	}

	if withNEI.Without(LabelNEI).Contains(LabelNEI) {
		t.Error("expected NEI removed after Without")
	}

	ordered := withNEI.ByLength()
	if ordered[0] != LabelNEI {
		t.Errorf("expected longest label first, got %s", ordered[0])
	}
}

func TestSearch_KeyNormalization(t *testing.T) {
	a := &Search{Query: "  Sahara   Desert size "}
	b := &Search{Query: "sahara desert SIZE", Mode: ModeSearch}
	if !SameAction(a, b) {
		t.Errorf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}

	limited := &Search{Query: "Sahara desert size", Limit: 5}
	if !SameAction(a, limited) {
		t.Error("the result limit must not distinguish searches")
	}

	c := &Search{Query: "sahara desert size", Mode: ModeNews}
	if SameAction(a, c) {
		t.Error("different modes must not be equal")
	}

	img := &Search{Image: "<image:1>"}
	if err := img.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if img.Mode != ModeReverse {
		t.Errorf("expected image search to default to reverse, got %s", img.Mode)
	}
}

func TestSearch_Validate(t *testing.T) {
	if err := (&Search{}).Validate(); err == nil {
		t.Error("expected error for empty search")
	}
	if err := (&Search{Query: "x", Mode: ModeReverse}).Validate(); err == nil {
		t.Error("expected error for reverse search without image")
	}

	start, _ := ParseDate("2024-02-01")
	end, _ := ParseDate("2024-01-01")
	if err := (&Search{Query: "x", StartDate: start, EndDate: end}).Validate(); err == nil {
		t.Error("expected error for inverted date range")
	}
}

func TestSearch_String(t *testing.T) {
	start, _ := ParseDate("2024-01-01")
	s := &Search{Query: `say "hi"`, Mode: ModeNews, Limit: 3, StartDate: start}
	want := `search("say \"hi\"", mode="news", limit=3, start_date="2024-01-01")`
	if got := s.String(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	if got := NewImageSearch("<image:1>").String(); got != "search(image=<image:1>)" {
		t.Errorf("unexpected reverse search rendering: %s", got)
	}
}

func TestGeolocate_KeyIgnoresTopK(t *testing.T) {
	a := &Geolocate{Image: "<image:1>", TopK: 10}
	b := &Geolocate{Image: "<image:1>", TopK: 3}
	if !SameAction(a, b) {
		t.Error("expected geolocate equality to ignore top-k")
	}
	if SameAction(a, &DetectManipulation{Image: "<image:1>"}) {
		t.Error("different variants must not be equal")
	}
}

func TestEvidence_Render(t *testing.T) {
	takeaway := strings.Repeat("a", 20)
	e := Evidence{
		Raw:       TextResult{Text: "raw"},
		Action:    NewTextSearch("x"),
		Takeaways: &takeaway,
	}

	got := e.Render(10)
	if !strings.HasPrefix(got, "### Evidence from `search`\n") {
		t.Errorf("unexpected header: %s", got)
	}
	if !strings.Contains(got, "aaaaaaaaaa [...]") {
		t.Errorf("expected truncated body, got %s", got)
	}

	notUseful := Evidence{Raw: ErrorResult{Action: "search", Err: errors.New("boom")}, Action: NewTextSearch("x")}
	if notUseful.IsUseful() {
		t.Error("evidence without takeaways must not be useful")
	}
	if !strings.Contains(notUseful.String(), "boom") {
		t.Errorf("expected raw error in body, got %s", notUseful.String())
	}
}

func TestReport_AddActionsSkipsDuplicates(t *testing.T) {
	r := NewReport(NewClaim("claim"), nil)

	added := r.AddActions([]Action{NewTextSearch("a"), NewTextSearch("b")})
	if len(added) != 2 {
		t.Fatalf("expected 2 added, got %d", len(added))
	}

	added = r.AddActions([]Action{NewTextSearch("A "), NewTextSearch("c")})
	if len(added) != 1 || added[0].String() != `search("c")` {
		t.Errorf("expected only c to be added, got %v", added)
	}

	if len(r.ActionsTaken) != 3 {
		t.Errorf("expected 3 actions taken, got %d", len(r.ActionsTaken))
	}
	if !r.HasAction(NewTextSearch("b")) {
		t.Error("expected HasAction to find b")
	}
}

func TestReport_SetVerdictOnce(t *testing.T) {
	r := NewReport(NewClaim("claim"), nil)

	if err := r.SetVerdict(LabelRefuted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.SetVerdict(LabelSupported)
	if !errors.Is(err, ErrVerdictAlreadySet) {
		t.Errorf("expected ErrVerdictAlreadySet, got %v", err)
	}
	if *r.Verdict != LabelRefuted {
		t.Errorf("verdict changed to %s", *r.Verdict)
	}
}

func TestReport_StringCausalOrder(t *testing.T) {
	r := NewReport(&Claim{Text: "The Sahara is the largest desert"}, nil)
	r.AddReasoning("Need to compare desert sizes.")
	r.AddActions([]Action{NewTextSearch("largest desert")})
	takeaway := "Antarctica is the largest desert."
	r.AddEvidence([]Evidence{{Raw: TextResult{Text: "raw"}, Action: NewTextSearch("largest desert"), Takeaways: &takeaway}})
	_ = r.SetVerdict(LabelRefuted)
	r.SetJustification("Antarctica is larger.")

	doc := r.String()
	order := []string{
		`Claim: "The Sahara is the largest desert"`,
		"## Reasoning\nNeed to compare desert sizes.",
		"## Actions\n```\nsearch(\"largest desert\")\n```",
		"## Evidence\n### Evidence from `search`\nAntarctica is the largest desert.",
		"### Verdict: REFUTED",
		"### Justification\nAntarctica is larger.",
	}

	pos := 0
	for _, part := range order {
		idx := strings.Index(doc[pos:], part)
		if idx < 0 {
			t.Fatalf("missing or out of order %q in:\n%s", part, doc)
		}
		pos += idx + len(part)
	}
}

func TestNewRecord(t *testing.T) {
	c := &Claim{ID: "c1", Text: "claim", Target: LabelRefuted}
	r := NewReport(c, nil)
	r.AddActions([]Action{NewTextSearch("q")})
	r.AddEvidence([]Evidence{{Raw: TextResult{Text: "raw"}, Action: NewTextSearch("q")}})
	_ = r.SetVerdict(LabelSupported)

	rec := NewRecord(r)
	if rec.ID != "c1" || rec.Predicted != LabelSupported || rec.Target != LabelRefuted {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(rec.Evidence) != 1 || rec.Evidence[0].Useful {
		t.Errorf("unexpected evidence records: %+v", rec.Evidence)
	}
}
