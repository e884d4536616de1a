package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/factcheck/internal/model"
)

// AllActionsRule asks the planner to exercise every available action
const AllActionsRule = "Very Important: No need to be frugal. Choose all available actions at least once."

// NoneAnswer is the reply a summarizer gives for a useless result
const NoneAnswer = "NONE"

// PlanInput carries everything the plan prompt renders
type PlanInput struct {
	Report     string // Rendered report document
	ActionDocs string // Documentation of the valid actions
	ExtraRules string
	AllActions bool
	Now        time.Time
}

// Plan renders the prompt asking which actions to take next
func Plan(in PlanInput) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var rules strings.Builder
	if in.ExtraRules != "" {
		fmt.Fprintf(&rules, "\n%s", strings.TrimSpace(in.ExtraRules))
	}
	if in.AllActions {
		fmt.Fprintf(&rules, "\n%s", AllActionsRule)
	}

	return fmt.Sprintf(`# Instructions
The available knowledge is insufficient to assess the Claim. Therefore, propose a set of actions to retrieve new and helpful evidence. Adhere to the following rules:
* The actions available are listed under Valid Actions, including a short description for each action. No other actions are possible at this moment.
* For each action, use the formatting as specified in Valid Actions.
* Include all actions in a single Markdown code block at the end of your answer.
* Propose as few actions as possible but as many as needed. Do not propose similar or previously used actions.
* Today's date is %s.%s

# Valid Actions
%s

# Record
%s

# Your Actions
Start with "%s" followed by a short explanation of what is still missing. Then write "%s" followed by the code block with your actions.`,
		now.Format("January 02, 2006"), rules.String(), in.ActionDocs, in.Report,
		"REASONING:", "NEXT_ACTIONS:")
}

// JudgeInput carries everything the judgment prompts render
type JudgeInput struct {
	Record      string // Report document, or the claim block alone
	Classes     model.LabelSet
	Definitions map[model.Label]string
	ExtraRules  string
}

// Judge renders the prompt asking for a verdict over the full record
func Judge(in JudgeInput) string {
	return fmt.Sprintf(`# Instructions
Determine the Claim's veracity by following these steps:
1. Briefly summarize the key insights from the fact-check (see Record) in at most one paragraph.
2. Write one paragraph about which one of the Decision Options applies best. Include the most appropriate decision option at the end and enclose it in backticks like `+"`this`"+`.%s

# Decision Options
%s

# Record
%s

# Your Judgement`, extraRules(in.ExtraRules), decisionOptions(in), in.Record)
}

// Naive renders a verdict prompt from the claim alone, allowing the model
// to reason from its own knowledge
func Naive(in JudgeInput) string {
	return fmt.Sprintf(`# Instructions
Determine the Claim's veracity using only your own knowledge. Write one paragraph of reasoning, then state the most appropriate decision option at the end and enclose it in backticks like `+"`this`"+`.%s

# Decision Options
%s

# Claim
%s

# Your Judgement`, extraRules(in.ExtraRules), decisionOptions(in), in.Record)
}

// Minimal renders a verdict prompt that asks for the label only
func Minimal(in JudgeInput) string {
	return fmt.Sprintf(`# Instructions
Classify the Claim. Answer with exactly one of the Decision Options enclosed in backticks like `+"`this`"+` and nothing else.

# Decision Options
%s

# Claim
%s

# Your Answer`, decisionOptions(in), in.Record)
}

// SummarizeResult renders the prompt condensing one tool result into
// takeaways for the fact-check
func SummarizeResult(actionName, result, report string) string {
	return fmt.Sprintf(`# Instructions
In order to find evidence that helps your fact-check, you just ran the action `+"`%s`"+` which yielded the Result below. Your task right now is to summarize the Result. What to include:
* Information that might be useful for the fact-check (see Record).
* Relevant data: dates, people, places, numbers, quotes.
* If available: the release date and the author of the result.
* The source URL of every piece of information you include.
Do NOT include irrelevant information. If the Result does not contain any information useful for the fact-check, answer with the one word "%s" and nothing else.

# Record
%s

# Result
%s

# Your Summary`, actionName, NoneAnswer, report, result)
}

// SummarizeManipulation renders the prompt interpreting a manipulation
// detector output
func SummarizeManipulation(result, report string) string {
	return fmt.Sprintf(`# Instructions
A manipulation detector analysed an image of the Claim and produced the Result below. Interpret the Result for the fact-check in two or three sentences. A high score suggests editing but is not proof. Mention which regions look suspicious if the Result names any. If the Result is inconclusive, answer with the one word "%s".

# Record
%s

# Result
%s

# Your Interpretation`, NoneAnswer, report, result)
}

// SummarizeReport renders the prompt producing the final justification
func SummarizeReport(report string) string {
	return fmt.Sprintf(`# Instructions
The following is a completed fact-check with its verdict. Write a concise justification of the verdict in at most three sentences. Cite the source URLs from the evidence that support the verdict. Do not cite any URL that does not appear in the Record.

# Record
%s

# Justification`, report)
}

func extraRules(rules string) string {
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return ""
	}
	return "\n" + rules
}

func decisionOptions(in JudgeInput) string {
	defs := in.Definitions
	if defs == nil {
		defs = model.DefaultDefinitions
	}
	var b strings.Builder
	for i, l := range in.Classes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "* `%s`", l)
		if d, ok := defs[l]; ok && d != "" {
			fmt.Fprintf(&b, ": %s", d)
		}
	}
	return b.String()
}
