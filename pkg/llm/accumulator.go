package llm

import "sort"

// toolCallAccumulator rebuilds complete tool calls from a provider's
// per-index streaming deltas. Providers emit tool-call arguments as a
// sequence of partial-JSON fragments tagged with a stable index (not a
// stable id — the id usually only arrives on the delta that opens the
// call); accumulation MUST be keyed by index and MUST only be read out
// once the provider signals the stream is done, never at the first sight
// of a finish_reason field, since finish_reason can arrive on the same
// event as the last content delta while a tool-call's argument buffer is
// still being appended to on a later event (SPEC_FULL.md §9 design note).
type toolCallAccumulator struct {
	byIndex map[int]*accumulatingCall
}

type accumulatingCall struct {
	id   string
	name string
	args []byte
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*accumulatingCall)}
}

// addDelta appends one fragment for the tool call at index. Any of id,
// name, argsFragment may be empty; a provider typically sends id and name
// once on the opening delta and argsFragment repeatedly afterward.
func (a *toolCallAccumulator) addDelta(index int, id, name, argsFragment string) {
	call, ok := a.byIndex[index]
	if !ok {
		call = &accumulatingCall{}
		a.byIndex[index] = call
	}
	if id != "" {
		call.id = id
	}
	if name != "" {
		call.name = name
	}
	if argsFragment != "" {
		call.args = append(call.args, argsFragment...)
	}
}

// finish returns the accumulated calls in index order. Call only once the
// provider's stream has signaled completion.
func (a *toolCallAccumulator) finish() []ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	indices := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]ToolCall, 0, len(indices))
	for _, i := range indices {
		c := a.byIndex[i]
		out = append(out, ToolCall{ID: c.id, Name: c.name, Arguments: string(c.args)})
	}
	return out
}
