package engine

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/synccompile"
	"github.com/conceptkit/ckit/internal/transport"
)

// candidate is one completion record that satisfies a single when-pattern,
// together with the variable bindings it would contribute.
type candidate struct {
	completionID string
	bindings     map[string]any
}

// combo is one fully-resolved match of every when-pattern in a sync: an
// ordered (by pattern position) tuple of completion ids — the firing key
// used to enforce once-only firing — and the merged variable
// substitution σ.
type combo struct {
	ids   []string
	sigma map[string]any
}

// matchWhenPattern finds every completion in a flow's records that
// satisfies one when-pattern: its own concept/action, the triggering
// invocation's input fields, and the completion's output fields (with
// "variant" merged in as an addressable field, matching the manifest's
// completion schema which always includes a variant property).
func matchWhenPattern(pattern synccompile.WhenPattern, records []actionlog.Record) []candidate {
	invocationByID := make(map[string]actionlog.Record)
	for _, r := range records {
		if r.Type == actionlog.TypeInvocation {
			invocationByID[r.ID] = r
		}
	}

	var out []candidate
	for _, r := range records {
		if r.Type != actionlog.TypeCompletion || r.Concept != pattern.ConceptURI || r.Action != pattern.Action {
			continue
		}
		bindings := make(map[string]any)
		invocation := invocationByID[r.ID]
		if !matchFieldList(pattern.Input, invocation.Input, bindings) {
			continue
		}
		output := make(map[string]any, len(r.Output)+1)
		for k, v := range r.Output {
			output[k] = v
		}
		output["variant"] = r.Variant
		if !matchFieldList(pattern.Output, output, bindings) {
			continue
		}
		out = append(out, candidate{completionID: r.ID, bindings: bindings})
	}
	return out
}

func matchFieldList(fields []synccompile.FieldMatch, data map[string]any, bindings map[string]any) bool {
	for _, f := range fields {
		val, present := data[f.Name]
		switch f.Kind {
		case synccompile.MatchLiteral:
			if !present || !reflect.DeepEqual(val, f.Literal) {
				return false
			}
		case synccompile.MatchWildcard:
			if !present {
				return false
			}
		case synccompile.MatchVariable:
			if !present {
				return false
			}
			if existing, ok := bindings[f.VarName]; ok {
				if !reflect.DeepEqual(existing, val) {
					return false
				}
			} else {
				bindings[f.VarName] = val
			}
		}
	}
	return true
}

// enumerateCombos finds every combination of completions (one per
// when-pattern, none reused across patterns) whose variable bindings
// are mutually consistent and which includes triggerID somewhere,
// ordered by the lexicographically smallest id tuple first.
func enumerateCombos(sync *synccompile.CompiledSync, records []actionlog.Record, triggerID string) []combo {
	perPattern := make([][]candidate, len(sync.When))
	for i, p := range sync.When {
		perPattern[i] = matchWhenPattern(p, records)
	}

	var results []combo
	used := make(map[string]bool)
	var backtrack func(idx int, sigma map[string]any, ids []string, sawTrigger bool)
	backtrack = func(idx int, sigma map[string]any, ids []string, sawTrigger bool) {
		if idx == len(perPattern) {
			if sawTrigger {
				results = append(results, combo{ids: append([]string(nil), ids...), sigma: cloneBindings(sigma)})
			}
			return
		}
		for _, cand := range perPattern[idx] {
			if used[cand.completionID] {
				continue
			}
			merged, ok := mergeBindings(sigma, cand.bindings)
			if !ok {
				continue
			}
			used[cand.completionID] = true
			backtrack(idx+1, merged, append(ids, cand.completionID), sawTrigger || cand.completionID == triggerID)
			delete(used, cand.completionID)
		}
	}
	backtrack(0, map[string]any{}, nil, false)

	sort.Slice(results, func(i, j int) bool {
		return lessIDTuple(results[i].ids, results[j].ids)
	})
	return results
}

func lessIDTuple(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func mergeBindings(base, incoming map[string]any) (map[string]any, bool) {
	merged := cloneBindings(base)
	for k, v := range incoming {
		if existing, ok := merged[k]; ok {
			if !reflect.DeepEqual(existing, v) {
				return nil, false
			}
			continue
		}
		merged[k] = v
	}
	return merged, true
}

func cloneBindings(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// resolveWhere evaluates a sync's where-clauses against σ in order,
// extending σ with each clause's bound variable. A state query that
// matches more than one record fans σ out into one branch per matched
// row, so a later `then` fires once per row (e.g. one deletion per
// matching comment); a query matching nothing aborts the whole match,
// as does a missing query capability or a remote refusal.
func (e *Engine) resolveWhere(ctx context.Context, clauses []synccompile.WhereClause, sigma map[string]any) ([]map[string]any, error) {
	sigmas := []map[string]any{cloneBindings(sigma)}
	for _, clause := range clauses {
		next := make([]map[string]any, 0, len(sigmas))
		switch clause.Kind {
		case synccompile.WhereQuery:
			t, ok := e.Registry.Get(clause.ConceptURI)
			if !ok {
				return nil, fmt.Errorf("engine: no transport for %s", clause.ConceptURI)
			}
			for _, s := range sigmas {
				args := make(map[string]any, len(clause.Criteria))
				for _, f := range clause.Criteria {
					switch f.Kind {
					case synccompile.MatchLiteral:
						args[f.Name] = f.Literal
					case synccompile.MatchVariable:
						args[f.Name] = s[f.VarName]
					}
				}
				result, err := t.Query(ctx, transport.QueryRequest{Relation: clause.Relation, Args: args})
				if err != nil {
					return nil, err
				}
				if len(result) == 0 {
					return nil, fmt.Errorf("engine: where query %s/%s matched nothing", clause.ConceptURI, clause.Relation)
				}
				for _, row := range result {
					branch := cloneBindings(s)
					branch[clause.BindVar] = row
					next = append(next, branch)
				}
			}
		case synccompile.WhereBind:
			for _, s := range sigmas {
				branch := cloneBindings(s)
				switch clause.BindValue.Kind {
				case synccompile.MatchLiteral:
					branch[clause.BindVar] = clause.BindValue.Literal
				case synccompile.MatchVariable:
					branch[clause.BindVar] = s[clause.BindValue.VarName]
				}
				next = append(next, branch)
			}
		}
		sigmas = next
	}
	return sigmas, nil
}
