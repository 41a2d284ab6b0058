package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/crew/internal/tools"
)

// fakeTools builds a registry of recording tools. Tools whose name starts
// with "bad_" fail.
func fakeTools(t *testing.T, names ...string) (*tools.Registry, *[]string) {
	t.Helper()
	var calls []string
	list := make([]tools.Tool, 0, len(names))
	for _, n := range names {
		name := n
		list = append(list, tools.Tool{
			Name:        name,
			Description: "fake " + name,
			Exec: func(ctx context.Context, params map[string]interface{}) tools.Result {
				calls = append(calls, name)
				if strings.HasPrefix(name, "bad_") {
					return tools.Failure("%s failed", name)
				}
				return tools.Result{Success: true, Output: name + " done"}
			},
		})
	}
	reg, err := tools.NewRegistry(list...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg, &calls
}

func TestLoop_NaturalStop(t *testing.T) {
	reg, calls := fakeTools(t, "write_file")
	count := 0
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		count++
		if count == 1 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{
				{ID: "tc1", Name: "write_file", Args: map[string]interface{}{"path": "a"}},
			}}, nil
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "tool" || last.ToolCallID != "tc1" {
			t.Errorf("expected tool result for tc1, got %+v", last)
		}
		return &llm.ChatResponse{Content: "All done"}, nil
	}

	m := newMetrics()
	res, err := NewLoop(provider, reg, 5, m).Run(context.Background(), Exchange{Prompt: "write a"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "All done" || res.Truncated {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(*calls) != 1 || m.Total != 1 || m.Successes != 1 {
		t.Errorf("expected one successful call, got %v / %+v", *calls, m)
	}
}

func TestLoop_TextProtocol(t *testing.T) {
	reg, _ := fakeTools(t, "generate_project")
	count := 0
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		count++
		if count == 1 {
			return &llm.ChatResponse{Content: `<tool_call>{"tool": "generate_project", "params": {"projectName": "demo-app"}}</tool_call}`}, nil
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "user" || !strings.Contains(last.Content, ResultOpenTag) {
			t.Errorf("expected tagged result message, got %+v", last)
		}
		return &llm.ChatResponse{Content: "Generated"}, nil
	}

	m := newMetrics()
	res, err := NewLoop(provider, reg, 5, m).Run(context.Background(), Exchange{Prompt: "scaffold"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Count("generate_project") != 1 {
		t.Errorf("expected one generate_project call, got %+v", m)
	}
	if res.Output != "Generated" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if !strings.Contains(res.Messages[0].Content, CallOpenTag) {
		t.Error("system prompt should describe the tagged protocol")
	}
}

func TestLoop_IterationBound(t *testing.T) {
	reg, calls := fakeTools(t, "read_file")
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Content:   "still reading",
			ToolCalls: []llm.ToolCallResponse{{ID: "x", Name: "read_file"}},
		}, nil
	}

	for _, bound := range []int{1, 3, 7} {
		*calls = nil
		m := newMetrics()
		res, err := NewLoop(provider, reg, bound, m).Run(context.Background(), Exchange{Prompt: "loop"})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(*calls) > bound || m.Total != bound {
			t.Errorf("bound %d: executed %d calls", bound, len(*calls))
		}
		if !res.Truncated || !strings.HasSuffix(res.Output, TruncationMarker) {
			t.Errorf("bound %d: expected truncation marker, got %q", bound, res.Output)
		}
	}
}

func TestLoop_NoMarkerOnNaturalStopAtBound(t *testing.T) {
	reg, _ := fakeTools(t, "read_file")
	count := 0
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		count++
		if count < 3 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "x", Name: "read_file"}}}, nil
		}
		return &llm.ChatResponse{Content: "finished"}, nil
	}

	res, err := NewLoop(provider, reg, 3, nil).Run(context.Background(), Exchange{Prompt: "p"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Truncated || strings.Contains(res.Output, TruncationMarker) {
		t.Errorf("natural stop must not be marked truncated: %+v", res)
	}
}

func TestLoop_UnknownToolIsFailure(t *testing.T) {
	reg, _ := fakeTools(t, "read_file")
	count := 0
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		count++
		if count == 1 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "x", Name: "rm_rf"}}}, nil
		}
		return &llm.ChatResponse{Content: "ok"}, nil
	}

	m := newMetrics()
	if _, err := NewLoop(provider, reg, 5, m).Run(context.Background(), Exchange{Prompt: "p"}); err != nil {
		t.Fatalf("unknown tool must not be fatal: %v", err)
	}
	if m.Failures != 1 || m.Count("rm_rf") != 1 {
		t.Errorf("expected one failure for rm_rf, got %+v", m)
	}
}

func TestLoop_ProviderError(t *testing.T) {
	reg, _ := fakeTools(t)
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, errors.New("rate limited")
	}
	_, err := NewLoop(provider, reg, 5, nil).Run(context.Background(), Exchange{Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestMetrics_SnapshotIsolation(t *testing.T) {
	m := newMetrics()
	m.Record("a", true)
	snap := m.Snapshot()
	m.Record("a", false)
	m.Reset()

	if snap.Total != 1 || snap.ByTool["a"] != 1 || snap.Successes != 1 {
		t.Errorf("snapshot changed after reset: %+v", snap)
	}
	if m.Total != 0 || len(m.ByTool) != 0 {
		t.Errorf("reset should clear counters: %+v", m)
	}
}
