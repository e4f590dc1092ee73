package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ActionGraph orders reconciliation actions by their dependencies. It
// performs a topological sort with a deterministic tie-break so a plan
// always comes out in the fixed facet order: role, function, schedule,
// permission, target.
type ActionGraph struct {
	// actions maps action kinds to their actions
	actions map[ActionKind]*Action

	// adjacencyList maps action kinds to their dependents
	adjacencyList map[ActionKind][]ActionKind

	// inDegree tracks the number of incoming edges for each node
	inDegree map[ActionKind]int

	// levels holds the computed topological levels
	levels [][]ActionKind
}

// NewActionGraph creates an empty action graph.
func NewActionGraph() *ActionGraph {
	return &ActionGraph{
		actions:       make(map[ActionKind]*Action),
		adjacencyList: make(map[ActionKind][]ActionKind),
		inDegree:      make(map[ActionKind]int),
		levels:        make([][]ActionKind, 0),
	}
}

// OrderActions sorts a set of planned actions into execution order. Each
// action may appear at most once per kind within a plan; dependencies point
// at kinds that must complete first.
func OrderActions(actions []Action) ([]Action, error) {
	if len(actions) == 0 {
		return actions, nil
	}

	g := NewActionGraph()
	if err := g.initialize(actions); err != nil {
		return nil, err
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	if err := g.computeLevels(); err != nil {
		return nil, err
	}

	ordered := make([]Action, 0, len(actions))
	for _, level := range g.levels {
		sortLevel(level, g.actions)
		for _, kind := range level {
			ordered = append(ordered, *g.actions[kind])
		}
	}
	return ordered, nil
}

// initialize indexes the actions and builds the adjacency structures.
func (g *ActionGraph) initialize(actions []Action) error {
	for i := range actions {
		action := &actions[i]
		if err := action.Kind.Validate(); err != nil {
			return NewPlanError("plan", err.Error())
		}
		key := graphKey(action)
		if _, exists := g.actions[key]; exists {
			return NewPlanError("plan", fmt.Sprintf("duplicate action %s", key))
		}
		g.actions[key] = action
		g.adjacencyList[key] = make([]ActionKind, 0)
		g.inDegree[key] = 0
	}

	for _, action := range g.actions {
		key := graphKey(action)
		for _, dep := range action.DependsOn {
			if _, exists := g.actions[dep]; !exists {
				return NewPlanError("plan",
					fmt.Sprintf("action %s depends on absent action %s", key, dep))
			}
			g.adjacencyList[dep] = append(g.adjacencyList[dep], key)
			g.inDegree[key]++
		}
	}

	return nil
}

// graphKey returns the node key for an action. Noops are keyed by facet so
// one plan can carry a noop per sub-resource.
func graphKey(a *Action) ActionKind {
	if a.Kind == ActionNoop {
		return ActionKind("noop_" + string(a.Facet))
	}
	return a.Kind
}

// detectCycles uses depth-first search to detect circular dependencies.
func (g *ActionGraph) detectCycles() error {
	visited := make(map[ActionKind]bool)
	recStack := make(map[ActionKind]bool)

	var visit func(node ActionKind, path []ActionKind) error
	visit = func(node ActionKind, path []ActionKind) error {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dependent := range g.adjacencyList[node] {
			if !visited[dependent] {
				if err := visit(dependent, path); err != nil {
					return err
				}
			} else if recStack[dependent] {
				return NewPlanError("plan",
					fmt.Sprintf("circular action dependency: %s", formatCycle(append(path, dependent))))
			}
		}

		recStack[node] = false
		return nil
	}

	for kind := range g.actions {
		if !visited[kind] {
			if err := visit(kind, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeLevels assigns topological levels using Kahn's algorithm.
func (g *ActionGraph) computeLevels() error {
	inDegree := make(map[ActionKind]int, len(g.inDegree))
	for k, d := range g.inDegree {
		inDegree[k] = d
	}

	current := make([]ActionKind, 0)
	for k, d := range inDegree {
		if d == 0 {
			current = append(current, k)
		}
	}
	if len(current) == 0 {
		return NewPlanError("plan", "no root actions: every action has dependencies")
	}

	processed := 0
	for len(current) > 0 {
		g.levels = append(g.levels, current)
		processed += len(current)

		next := make([]ActionKind, 0)
		for _, node := range current {
			for _, dependent := range g.adjacencyList[node] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(g.actions) {
		return NewPlanError("plan", "not all actions reachable from roots")
	}
	return nil
}

// sortLevel orders the actions within one topological level by facet order,
// then by kind priority within the facet, so the flattened plan is stable.
func sortLevel(level []ActionKind, actions map[ActionKind]*Action) {
	sort.Slice(level, func(i, j int) bool {
		a, b := actions[level[i]], actions[level[j]]
		if a.Facet.Order() != b.Facet.Order() {
			return a.Facet.Order() < b.Facet.Order()
		}
		return kindPriority(a.Kind) < kindPriority(b.Kind)
	})
}

// kindPriority orders action kinds within one facet: creation first, then
// code, then configuration.
func kindPriority(k ActionKind) int {
	switch k {
	case ActionCreateRole, ActionCreateFunction:
		return 0
	case ActionUpdateFunctionCode:
		return 1
	case ActionUpdateRolePolicy, ActionUpdateFunctionConfig:
		return 2
	case ActionPutScheduleRule, ActionGrantInvokePermission, ActionBindTarget:
		return 3
	default:
		return 4
	}
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []ActionKind) string {
	parts := make([]string, len(cycle))
	for i, k := range cycle {
		parts[i] = string(k)
	}
	return strings.Join(parts, " -> ")
}

// ToDOT renders a plan's action dependencies in DOT format for Graphviz.
func ToDOT(plan *Plan) string {
	var sb strings.Builder

	sb.WriteString("digraph ReconciliationPlan {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i := range plan.Actions {
		a := &plan.Actions[i]
		label := fmt.Sprintf("%s\\n%s", a.Kind, a.Facet)
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
			graphKey(a), label, actionColor(a.Kind)))
	}
	sb.WriteString("\n")

	for i := range plan.Actions {
		a := &plan.Actions[i]
		for _, dep := range a.DependsOn {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dep, graphKey(a)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// actionColor returns a fill color for visualizing action kinds.
func actionColor(k ActionKind) string {
	switch {
	case k.IsCreate():
		return "lightgreen"
	case k == ActionNoop:
		return "lightgray"
	default:
		return "lightblue"
	}
}
