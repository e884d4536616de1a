package model

import "time"

// Record is the exported form of a finished report
type Record struct {
	ID            string           `json:"id"`
	Claim         string           `json:"claim"`
	Predicted     Label            `json:"predicted"`
	Target        Label            `json:"target,omitempty"`
	Justification string           `json:"justification,omitempty"`
	Reasoning     []string         `json:"reasoning,omitempty"`
	Actions       []string         `json:"actions,omitempty"`
	Evidence      []EvidenceRecord `json:"evidence,omitempty"`
	Duration      time.Duration    `json:"duration_ns,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// EvidenceRecord is the exported form of one evidence entry
type EvidenceRecord struct {
	Action    string `json:"action"`
	Useful    bool   `json:"useful"`
	Takeaways string `json:"takeaways,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// NewRecord flattens a report for export
func NewRecord(r *Report) Record {
	rec := Record{
		Justification: r.Justification,
		Reasoning:     append([]string(nil), r.ReasoningLog...),
	}
	if r.Claim != nil {
		rec.ID = r.Claim.ID
		rec.Claim = r.Claim.Text
		rec.Target = r.Claim.Target
	}
	if r.Verdict != nil {
		rec.Predicted = *r.Verdict
	}
	for _, a := range r.ActionsTaken {
		rec.Actions = append(rec.Actions, a.String())
	}
	for _, e := range r.EvidenceLog {
		er := EvidenceRecord{Useful: e.IsUseful()}
		if e.Action != nil {
			er.Action = e.Action.String()
		}
		if e.Takeaways != nil {
			er.Takeaways = *e.Takeaways
		}
		if e.Raw != nil {
			er.Raw = e.Raw.String()
		}
		rec.Evidence = append(rec.Evidence, er)
	}
	return rec
}
