package worker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/crew/internal/tools"
)

// Tagged tool-call wire format used when the backend has no native tool calls:
//
//	<tool_call>{"tool": "write_file", "params": {"path": "a.go", "content": "..."}}</tool_call>
const (
	CallOpenTag    = "<tool_call>"
	CallCloseTag   = "</tool_call>"
	ResultOpenTag  = "<tool_result>"
	ResultCloseTag = "</tool_result>"
)

// closeTagPattern matches the closing tag and its common malformed variants
// (wrong final bracket, stray whitespace).
var closeTagPattern = regexp.MustCompile(`</\s*tool_call\s*[>}\])]`)

// Call is a tool invocation requested by the backend.
type Call struct {
	ID     string // set for native calls only
	Tool   string
	Params map[string]interface{}
	Native bool
}

type wireCall struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// ParseCall extracts the first tagged tool call from text.
// Anything after the last closing brace that yields valid JSON is discarded.
func ParseCall(text string) (Call, bool) {
	start := strings.Index(text, CallOpenTag)
	if start < 0 {
		return Call{}, false
	}
	body := text[start+len(CallOpenTag):]
	if loc := closeTagPattern.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}

	open := strings.Index(body, "{")
	if open < 0 {
		return Call{}, false
	}
	for end := strings.LastIndex(body, "}"); end > open; end = strings.LastIndex(body[:end], "}") {
		var wc wireCall
		if err := json.Unmarshal([]byte(body[open:end+1]), &wc); err != nil {
			continue
		}
		if wc.Tool == "" {
			return Call{}, false
		}
		if wc.Params == nil {
			wc.Params = map[string]interface{}{}
		}
		return Call{Tool: wc.Tool, Params: wc.Params}, true
	}
	return Call{}, false
}

// detectCall picks at most one call from a response, preferring native calls.
func detectCall(resp *llm.ChatResponse) (Call, bool) {
	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		params := tc.Args
		if params == nil {
			params = map[string]interface{}{}
		}
		return Call{ID: tc.ID, Tool: tc.Name, Params: params, Native: true}, true
	}
	return ParseCall(resp.Content)
}

// FormatCall renders a call in the tagged wire format.
func FormatCall(tool string, params map[string]interface{}) string {
	data, _ := json.Marshal(wireCall{Tool: tool, Params: params})
	return CallOpenTag + string(data) + CallCloseTag
}

// FormatResult renders a tool result for the exchange.
func FormatResult(tool string, res tools.Result) string {
	var sb strings.Builder
	sb.WriteString(ResultOpenTag)
	sb.WriteString("\n")
	if res.Success {
		fmt.Fprintf(&sb, "Tool %s succeeded.\n", tool)
		if res.Output != "" {
			sb.WriteString(res.Output)
			sb.WriteString("\n")
		}
	} else {
		fmt.Fprintf(&sb, "Tool %s failed.\n", tool)
		sb.WriteString(res.Error)
		sb.WriteString("\n")
	}
	sb.WriteString(ResultCloseTag)
	return sb.String()
}

// ProtocolInstructions describes the tagged format and the available tools.
func ProtocolInstructions(defs []llm.ToolDef) string {
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("To use a tool, reply with exactly one block of the form:\n")
	sb.WriteString(CallOpenTag + `{"tool": "<name>", "params": {...}}` + CallCloseTag + "\n")
	sb.WriteString("Wait for the " + ResultOpenTag + " before calling another tool. ")
	sb.WriteString("When the work is done, reply without a tool call.\n\nTools:\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "- %s: %s", d.Name, d.Description)
		if props, ok := d.Parameters["properties"].(map[string]interface{}); ok && len(props) > 0 {
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&sb, " (params: %s)", strings.Join(keys, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
