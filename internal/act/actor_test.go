package act

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factcheck/internal/llm"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool"
)

type stubTool struct {
	name    string
	actions []string
	calls   atomic.Int32
	perform func(action model.Action) (model.Result, error)
}

func (s *stubTool) Name() string      { return s.name }
func (s *stubTool) Actions() []string { return s.actions }

func (s *stubTool) Perform(ctx context.Context, action model.Action, claim *model.Claim) (model.Result, error) {
	s.calls.Add(1)
	return s.perform(action)
}

type summarizingTool struct {
	*stubTool
}

func (s summarizingTool) SummaryPrompt(action model.Action, result model.Result, report *model.Report) string {
	return "summarize: " + result.String()
}

type mappedResult struct {
	model.TextResult
}

func (mappedResult) References() []string { return []string{"Confidence map at: /tmp/conf.png"} }

func newReport() *model.Report {
	return model.NewReport(model.NewClaim("The Sahara is covered in snow."), nil)
}

func textTool(name string, actions ...string) *stubTool {
	return &stubTool{
		name:    name,
		actions: actions,
		perform: func(a model.Action) (model.Result, error) {
			return model.TextResult{Text: "result for " + a.String()}, nil
		},
	}
}

func TestActor_VerbatimResults(t *testing.T) {
	geo := textTool("geo", model.ActionGeolocate)
	set, err := tool.NewSet(geo)
	require.NoError(t, err)

	actor := New(set, nil)
	actions := []model.Action{model.NewGeolocate("<image:1>")}

	evidence := actor.Perform(context.Background(), actions, newReport())

	require.Len(t, evidence, 1)
	require.True(t, evidence[0].IsUseful())
	assert.Equal(t, "result for geolocate(<image:1>)", *evidence[0].Takeaways)
	assert.Same(t, actions[0], evidence[0].Action)
}

func TestActor_OrderAndCount(t *testing.T) {
	search := textTool("search", model.ActionSearch)
	geo := textTool("geo", model.ActionGeolocate)
	set, err := tool.NewSet(search, geo)
	require.NoError(t, err)

	actions := []model.Action{
		model.NewTextSearch("sahara snow"),
		model.NewGeolocate("<image:1>"),
		&model.DetectManipulation{Image: "<image:1>"},
		model.NewTextSearch("algeria weather"),
	}

	evidence := New(set, nil).Perform(context.Background(), actions, newReport())

	require.Len(t, evidence, len(actions))
	for i, ev := range evidence {
		assert.Equal(t, actions[i].Key(), ev.Action.Key())
	}
	assert.False(t, evidence[2].IsUseful(), "unserved action yields non-useful evidence")
	errRes, ok := evidence[2].Raw.(model.ErrorResult)
	require.True(t, ok)
	assert.ErrorIs(t, errRes.Err, tool.ErrNoTool)
}

func TestActor_ToolErrorAndPanic(t *testing.T) {
	failing := &stubTool{
		name:    "search",
		actions: []string{model.ActionSearch},
		perform: func(model.Action) (model.Result, error) { return nil, errors.New("quota exceeded") },
	}
	panicking := &stubTool{
		name:    "geo",
		actions: []string{model.ActionGeolocate},
		perform: func(model.Action) (model.Result, error) { panic("model crashed") },
	}
	set, err := tool.NewSet(failing, panicking)
	require.NoError(t, err)

	evidence := New(set, nil).Perform(context.Background(), []model.Action{
		model.NewTextSearch("q"),
		model.NewGeolocate("<image:1>"),
	}, newReport())

	require.Len(t, evidence, 2)
	for _, ev := range evidence {
		assert.False(t, ev.IsUseful())
		assert.IsType(t, model.ErrorResult{}, ev.Raw)
	}
	assert.Contains(t, evidence[0].Raw.String(), "quota exceeded")
	assert.Contains(t, evidence[1].Raw.String(), "panicked")
}

func TestActor_Summaries(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		errs      int
		useful    bool
		want      string
	}{
		{name: "summary", responses: []string{"  Snow fell in Ain Sefra. https://a.example  "}, useful: true, want: "Snow fell in Ain Sefra. https://a.example"},
		{name: "none answer", responses: []string{"NONE"}, useful: false},
		{name: "empty answer", responses: []string{"   "}, useful: false},
		{name: "retries transport errors", responses: []string{"Recovered."}, errs: 2, useful: true, want: "Recovered."},
		{name: "exhausted", errs: 3, useful: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
				calls++
				if calls <= tt.errs {
					return "", errors.New("timeout")
				}
				require.True(t, strings.HasPrefix(p, "summarize: "))
				return tt.responses[0], nil
			})

			st := summarizingTool{textTool("search", model.ActionSearch)}
			set, err := tool.NewSet(st)
			require.NoError(t, err)

			evidence := New(set, gen).Perform(context.Background(), []model.Action{model.NewTextSearch("q")}, newReport())

			require.Len(t, evidence, 1)
			assert.Equal(t, tt.useful, evidence[0].IsUseful())
			if tt.useful {
				assert.Equal(t, tt.want, *evidence[0].Takeaways)
			}
			assert.LessOrEqual(t, calls, DefaultSummaryAttempts)
		})
	}
}

func TestActor_SummaryAppendsReferences(t *testing.T) {
	st := summarizingTool{&stubTool{
		name:    "detector",
		actions: []string{model.ActionDetectManipulation},
		perform: func(model.Action) (model.Result, error) {
			return mappedResult{model.TextResult{Text: "Score: 0.9"}}, nil
		},
	}}
	set, err := tool.NewSet(st)
	require.NoError(t, err)

	gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "Likely edited.", nil
	})

	evidence := New(set, gen).Perform(context.Background(),
		[]model.Action{&model.DetectManipulation{Image: "<image:1>"}}, newReport())

	require.True(t, evidence[0].IsUseful())
	assert.Equal(t, "Likely edited.\nConfidence map at: /tmp/conf.png", *evidence[0].Takeaways)
}

func TestActor_NonUsefulResultSkipsSummary(t *testing.T) {
	st := summarizingTool{&stubTool{
		name:    "search",
		actions: []string{model.ActionSearch},
		perform: func(model.Action) (model.Result, error) { return &model.SearchResults{}, nil },
	}}
	set, err := tool.NewSet(st)
	require.NoError(t, err)

	gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		t.Fatal("summarizer should not be called")
		return "", nil
	})

	evidence := New(set, gen).Perform(context.Background(), []model.Action{model.NewTextSearch("q")}, newReport())
	assert.False(t, evidence[0].IsUseful())
	assert.Equal(t, "No search results.", evidence[0].Raw.String())
}

func TestActor_CycleCacheAndReset(t *testing.T) {
	search := textTool("search", model.ActionSearch)
	set, err := tool.NewSet(search)
	require.NoError(t, err)
	actor := New(set, nil)

	q := []model.Action{model.NewTextSearch("sahara snow")}
	actor.Perform(context.Background(), q, newReport())
	actor.Perform(context.Background(), []model.Action{model.NewTextSearch("  Sahara   SNOW ")}, newReport())
	assert.Equal(t, int32(1), search.calls.Load())

	actor.Reset()
	actor.Perform(context.Background(), q, newReport())
	assert.Equal(t, int32(2), search.calls.Load())
}

func TestActor_CancelledContext(t *testing.T) {
	search := textTool("search", model.ActionSearch)
	set, err := tool.NewSet(search)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evidence := New(set, nil).Perform(ctx, []model.Action{model.NewTextSearch("q")}, newReport())
	require.Len(t, evidence, 1)
	assert.False(t, evidence[0].IsUseful())
	assert.Equal(t, int32(0), search.calls.Load())
}
