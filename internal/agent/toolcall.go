package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// toolCall is a parsed tool invocation from the LLM response.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolResult holds the output from executing a tool.
type toolResult struct {
	Tool   string
	Output string
	Err    error
}

const toolFence = "```tool_call"

// toolCallRe matches ```tool_call\n{...}\n``` blocks in LLM output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// parseToolCalls extracts tool_call blocks from LLM response text.
func parseToolCalls(text string) []toolCall {
	matches := toolCallRe.FindAllStringSubmatch(text, -1)
	var calls []toolCall
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		var tc toolCall
		if err := json.Unmarshal([]byte(match[1]), &tc); err != nil {
			continue
		}
		if tc.Tool != "" {
			calls = append(calls, tc)
		}
	}
	return calls
}

// executeToolCalls runs each call against the guarded set.
func executeToolCalls(ctx context.Context, tools *ToolSet, calls []toolCall) []toolResult {
	results := make([]toolResult, 0, len(calls))
	for _, tc := range calls {
		tool, ok := tools.Get(tc.Tool)
		if !ok {
			results = append(results, toolResult{Tool: tc.Tool, Err: fmt.Errorf("unknown tool: %s", tc.Tool)})
			continue
		}
		input := string(tc.Input)
		if input == "" || input == "null" {
			input = "{}"
		}
		output, err := tool.Execute(ctx, input)
		results = append(results, toolResult{Tool: tc.Tool, Output: output, Err: err})
	}
	return results
}

// formatToolResults renders tool execution results for the LLM.
func formatToolResults(results []toolResult) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "### %s\n", r.Tool)
		if r.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n", r.Err)
		} else {
			b.WriteString(r.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fenceFilter removes ```tool_call blocks from a stream of text deltas
// while letting everything else through as early as possible. Text that
// might be the start of a tool fence is held back until it is decided.
type fenceFilter struct {
	buf     string
	inBlock bool
}

// Write feeds a delta and returns the text that is safe to relay.
func (f *fenceFilter) Write(delta string) string {
	f.buf += delta
	var out strings.Builder
	for {
		if f.inBlock {
			idx := strings.Index(f.buf, "```")
			if idx < 0 {
				// keep a possible partial closing fence
				if len(f.buf) > 2 {
					f.buf = f.buf[len(f.buf)-2:]
				}
				return out.String()
			}
			f.buf = f.buf[idx+3:]
			f.inBlock = false
			continue
		}

		idx := strings.Index(f.buf, "```")
		if idx < 0 {
			keep := partialFence(f.buf)
			out.WriteString(f.buf[:len(f.buf)-keep])
			f.buf = f.buf[len(f.buf)-keep:]
			return out.String()
		}
		out.WriteString(f.buf[:idx])
		rest := f.buf[idx:]
		switch {
		case strings.HasPrefix(rest, toolFence):
			f.buf = rest[len(toolFence):]
			f.inBlock = true
		case len(rest) < len(toolFence) && strings.HasPrefix(toolFence, rest):
			f.buf = rest
			return out.String()
		default:
			out.WriteString("```")
			f.buf = rest[3:]
		}
	}
}

// Flush returns any held-back text. An unterminated tool block is dropped.
func (f *fenceFilter) Flush() string {
	if f.inBlock {
		f.buf = ""
		return ""
	}
	out := f.buf
	f.buf = ""
	return out
}

// partialFence returns how many trailing bytes of s could begin a fence.
func partialFence(s string) int {
	switch {
	case strings.HasSuffix(s, "``"):
		return 2
	case strings.HasSuffix(s, "`"):
		return 1
	}
	return 0
}
