// Package trace implements the flow-trace builder: it reconstructs a
// causal tree from one flow's action log plus the compiled syncs that
// produced it, annotating @gate concept nodes along the way.
package trace

import (
	"sort"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/manifest"
)

// Progress is a gate node's optional numeric progress indicator.
type Progress struct {
	Current int    `json:"current"`
	Target  int    `json:"target"`
	Unit    string `json:"unit"`
}

// Gate annotates a node whose concept is declared `@gate`.
type Gate struct {
	Pending         bool      `json:"pending"`
	WaitDescription string    `json:"waitDescription,omitempty"`
	Progress        *Progress `json:"progress,omitempty"`
}

// Node is one tree node: either a completion already recorded, or a
// still-outstanding invocation with no matching completion yet. Fields
// carries the invocation's input — the only data available for a node
// still pending, and retained once completed for consistency.
type Node struct {
	InvocationID string         `json:"invocationId"`
	CompletionID string         `json:"completionId,omitempty"`
	Concept      string         `json:"concept"`
	Action       string         `json:"action"`
	Variant      string         `json:"variant,omitempty"`
	SyncName     string         `json:"syncName,omitempty"`
	Pending      bool           `json:"pending"`
	Fields       map[string]any `json:"fields,omitempty"`
	Gate         *Gate          `json:"gate,omitempty"`
	Children     []*Node        `json:"children,omitempty"`
}

// GateConcepts reports which concept URIs are annotated @gate, keyed by
// their manifest's URI field.
type GateConcepts map[string]*manifest.Manifest

// ProgressExtractor reads a gate concept's optional progress indicator out
// of a completion's output fields; concepts that never report progress
// can pass a nil extractor.
type ProgressExtractor func(completion actionlog.Record) (*Progress, string, bool)

// Build reconstructs the causal tree for one flow. records must be in
// append order (as returned by actionlog.Log.LoadFlow); edges are the
// extra causal links actionlog.Log.LoadEdges returns for multi-when-
// pattern sync firings. gates may be nil if no concept in this flow is
// gate-annotated.
func Build(records []actionlog.Record, edges []actionlog.Edge, gates GateConcepts, progress ProgressExtractor) *Node {
	if len(records) == 0 {
		return nil
	}

	invocations := make(map[string]actionlog.Record)
	completions := make(map[string]actionlog.Record)
	for _, r := range records {
		switch r.Type {
		case actionlog.TypeInvocation:
			invocations[r.ID] = r
		case actionlog.TypeCompletion:
			completions[r.ID] = r
		}
	}

	// childrenOf[parentCompletionID] = invocation ids the sync engine
	// produced directly from that completion (Record.Parent), plus any
	// additional causal links recorded as Edge for multi-when-pattern
	// firings.
	childrenOf := make(map[string][]string)
	for _, r := range records {
		if r.Type != actionlog.TypeInvocation || r.Parent == "" {
			continue
		}
		childrenOf[r.Parent] = append(childrenOf[r.Parent], r.ID)
	}
	for _, e := range edges {
		childrenOf[e.From] = append(childrenOf[e.From], e.To)
	}
	for k := range childrenOf {
		ids := childrenOf[k]
		sort.Strings(ids)
		childrenOf[k] = dedupeStrings(ids)
	}

	root := records[0]
	for _, r := range records {
		if r.Type == actionlog.TypeCompletion {
			root = r
			break
		}
	}
	rootInvocation, hasRootInvocation := invocations[root.ID]

	visited := make(map[string]bool)
	return buildNode(root.ID, rootInvocation, hasRootInvocation, invocations, completions, childrenOf, gates, progress, visited)
}

func buildNode(
	id string,
	invocation actionlog.Record,
	hasInvocation bool,
	invocations, completions map[string]actionlog.Record,
	childrenOf map[string][]string,
	gates GateConcepts,
	extractProgress ProgressExtractor,
	visited map[string]bool,
) *Node {
	if visited[id] {
		return nil
	}
	visited[id] = true

	completion, hasCompletion := completions[id]

	n := &Node{InvocationID: id}
	switch {
	case hasCompletion:
		n.CompletionID = completion.ID
		n.Concept = completion.Concept
		n.Action = completion.Action
		n.Variant = completion.Variant
		n.Pending = false
	case hasInvocation:
		n.Concept = invocation.Concept
		n.Action = invocation.Action
		n.SyncName = invocation.Sync
		n.Pending = true
	default:
		n.Pending = true
	}
	if hasInvocation {
		n.SyncName = invocation.Sync
		n.Fields = invocation.Input
	}

	if gates != nil {
		if m, ok := gates[n.Concept]; ok && m.Gate {
			g := &Gate{Pending: n.Pending}
			if hasCompletion {
				if desc, ok := completion.Output["description"].(string); ok {
					g.WaitDescription = desc
				}
				if extractProgress != nil {
					if p, wait, ok := extractProgress(completion); ok {
						g.Progress = p
						if wait != "" {
							g.WaitDescription = wait
						}
					}
				}
			}
			n.Gate = g
		}
	}

	for _, childID := range childrenOf[id] {
		childInvocation, hasChildInvocation := invocations[childID]
		if child := buildNode(childID, childInvocation, hasChildInvocation, invocations, completions, childrenOf, gates, extractProgress, visited); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}

// GateOnly prunes tree to only nodes that are gate nodes themselves or
// have a gate node somewhere in their subtree.
func GateOnly(n *Node) *Node {
	if n == nil {
		return nil
	}
	var kept []*Node
	for _, c := range n.Children {
		if pruned := GateOnly(c); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	if n.Gate == nil && len(kept) == 0 {
		return nil
	}
	clone := *n
	clone.Children = kept
	return &clone
}

func dedupeStrings(sorted []string) []string {
	out := sorted[:0]
	var prev string
	first := true
	for _, s := range sorted {
		if first || s != prev {
			out = append(out, s)
			prev = s
			first = false
		}
	}
	return out
}
