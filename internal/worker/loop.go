package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/tools"
)

// DefaultMaxIterations bounds the tool-invocation loop.
const DefaultMaxIterations = 10

// TruncationMarker is appended to the output when the iteration bound stops the loop.
const TruncationMarker = "[truncated: tool iteration limit reached]"

// Exchange is the request for one run of the loop.
type Exchange struct {
	System string
	Prompt string
	// Tools overrides the definitions offered to the backend. Nil offers the
	// full registry.
	Tools []llm.ToolDef
}

// LoopResult is the outcome of one run of the loop.
type LoopResult struct {
	Output     string
	Iterations int
	Truncated  bool
	Messages   []llm.Message
}

// Loop drives the completion backend and executes the tool calls it requests.
// A Loop is not safe for concurrent use.
type Loop struct {
	provider      llm.Provider
	registry      *tools.Registry
	maxIterations int
	metrics       *Metrics
	logger        *logging.Logger

	// OnToolCall is called after each executed call.
	OnToolCall func(tool string, res tools.Result, duration time.Duration)
}

// NewLoop creates a loop. Calls are counted into metrics.
func NewLoop(provider llm.Provider, registry *tools.Registry, maxIterations int, metrics *Metrics) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if metrics == nil {
		metrics = newMetrics()
	}
	return &Loop{
		provider:      provider,
		registry:      registry,
		maxIterations: maxIterations,
		metrics:       metrics,
		logger:        logging.New().WithComponent("tool-loop"),
	}
}

// Run exchanges messages with the backend until it stops requesting tools
// or the iteration bound is reached.
func (l *Loop) Run(ctx context.Context, ex Exchange) (*LoopResult, error) {
	defs := ex.Tools
	if defs == nil {
		defs = l.registry.Definitions()
	}
	system := ex.System
	if proto := ProtocolInstructions(defs); proto != "" {
		if system != "" {
			system += "\n\n"
		}
		system += proto
	}

	messages := make([]llm.Message, 0, 2+2*l.maxIterations)
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, llm.Message{Role: "user", Content: ex.Prompt})

	result := &LoopResult{}
	var last string
	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.provider.Chat(ctx, llm.ChatRequest{
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			result.Messages = messages
			return result, fmt.Errorf("LLM error: %w", err)
		}
		result.Iterations = i + 1
		last = resp.Content

		call, ok := detectCall(resp)
		if !ok {
			messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
			result.Output = resp.Content
			result.Messages = messages
			return result, nil
		}

		start := time.Now()
		res := l.registry.Execute(ctx, call.Tool, call.Params)
		l.metrics.Record(call.Tool, res.Success)
		l.logger.Debug("tool_call", map[string]interface{}{
			"tool":    call.Tool,
			"success": res.Success,
			"native":  call.Native,
		})
		if l.OnToolCall != nil {
			l.OnToolCall(call.Tool, res, time.Since(start))
		}

		if call.Native {
			messages = append(messages,
				llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls[:1]},
				llm.Message{Role: "tool", ToolCallID: call.ID, Content: FormatResult(call.Tool, res)},
			)
		} else {
			messages = append(messages,
				llm.Message{Role: "assistant", Content: resp.Content},
				llm.Message{Role: "user", Content: FormatResult(call.Tool, res)},
			)
		}
	}

	l.logger.Warn("tool_loop_truncated", map[string]interface{}{
		"max_iterations": l.maxIterations,
	})
	result.Truncated = true
	if last != "" {
		result.Output = last + "\n\n" + TruncationMarker
	} else {
		result.Output = TruncationMarker
	}
	result.Messages = messages
	return result, nil
}
