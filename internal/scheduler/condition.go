package scheduler

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// conditionCache compiles each edge's expr-lang program once, mirroring
// internal/policy's compile-once-evaluate-many discipline for rule
// expressions.
type conditionCache struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func newConditionCache() *conditionCache {
	return &conditionCache{programs: make(map[string]*vm.Program)}
}

func (c *conditionCache) compile(condition string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[condition]; ok {
		return p, nil
	}
	p, err := expr.Compile(condition, expr.AsBool())
	if err != nil {
		return nil, core.NewError(core.CodeInvalidInput, "invalid edge condition: "+err.Error())
	}
	c.programs[condition] = p
	return p, nil
}

// evaluate runs edge's condition against output, the completed From
// node's result fields. An empty condition always passes; this is the
// common case section 4.8 describes for unconditional edges.
func (c *conditionCache) evaluate(edge core.Edge, output map[string]any) (bool, error) {
	if edge.Condition == "" {
		return true, nil
	}
	program, err := c.compile(edge.Condition)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, output)
	if err != nil {
		return false, core.NewError(core.CodeInvalidInput, "edge condition evaluation error: "+err.Error())
	}
	matched, ok := out.(bool)
	if !ok {
		return false, core.NewError(core.CodeInvalidInput, "edge condition did not evaluate to a boolean")
	}
	return matched, nil
}
