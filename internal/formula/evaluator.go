package formula

import (
	"fmt"

	"order-reconciliation-service/internal/models"
	"order-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// slabRateIdent is the synthetic identifier bound to the tiered commission
// rate of the record's net amount.
const slabRateIdent = "slab_rate"

// netAmountField is the physical field the slab rate is derived from.
const netAmountField = "net_amount"

// Definition is one named formula in declaration order. Expressions may
// reference other formula names and report column names.
type Definition struct {
	Name       string
	Expression string
}

// DefinitionsFromModels converts persisted formula rows (already ordered by
// position) into compiler input.
func DefinitionsFromModels(rows []models.FormulaDefinition) []Definition {
	defs := make([]Definition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, Definition{Name: row.Name, Expression: row.Expression})
	}
	return defs
}

// CompiledSet holds one source's formulas with all formula-to-formula
// references inlined and all report columns substituted with physical field
// names. Safe for reuse across records; compiled once per pass.
type CompiledSet struct {
	source models.DataSource
	names  []string
	trees  map[string]node
	log    logger.Logger
}

type resolveState int

const (
	stateUnresolved resolveState = iota
	stateResolving
	stateResolved
)

// Compile parses every definition, inlines references to other formulas
// (detecting cycles explicitly, independent of declaration order) and maps
// remaining identifiers through the field mapping resolver. A definition
// that fails to parse is logged and bound to constant zero so the rest of
// the set still runs; cycles and duplicate names are configuration errors
// and fail the compilation.
func Compile(source models.DataSource, defs []Definition, resolver *Resolver, log logger.Logger) (*CompiledSet, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("formula")

	parsed := make(map[string]node, len(defs))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if _, dup := parsed[def.Name]; dup {
			return nil, fmt.Errorf("duplicate formula %q", def.Name)
		}
		root, err := parseExpression(def.Expression)
		if err != nil {
			// A malformed expression disables that one formula, not
			// the set: the field evaluates to zero on every record.
			log.WithFields(logger.Fields{
				"source":  source,
				"formula": def.Name,
			}).WithError(err).Warn("formula failed to parse, field will be zero")
			root = numberNode{value: decimal.Zero}
		}
		parsed[def.Name] = root
		names = append(names, def.Name)
	}

	resolved := make(map[string]node, len(defs))
	states := make(map[string]resolveState, len(defs))

	var resolve func(name string) (node, error)
	resolve = func(name string) (node, error) {
		switch states[name] {
		case stateResolved:
			return resolved[name], nil
		case stateResolving:
			return nil, fmt.Errorf("formula %q is part of a reference cycle", name)
		}
		states[name] = stateResolving

		root, err := rewriteIdents(parsed[name], func(ident identNode) (node, error) {
			// Formula names shadow raw fields; anything else is a
			// report column or a physical field.
			if _, isFormula := parsed[ident.name]; isFormula {
				return resolve(ident.name)
			}
			if resolver != nil && ident.name != slabRateIdent {
				return identNode{name: resolver.Resolve(ident.name)}, nil
			}
			return ident, nil
		})
		if err != nil {
			return nil, err
		}

		states[name] = stateResolved
		resolved[name] = root
		return root, nil
	}

	for _, name := range names {
		if _, err := resolve(name); err != nil {
			return nil, err
		}
	}

	return &CompiledSet{
		source: source,
		names:  names,
		trees:  resolved,
		log:    log,
	}, nil
}

// Names returns the formula names in declaration order.
func (s *CompiledSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Evaluate computes every formula for one record environment, in
// declaration order. Earlier formula results become visible to the slab
// rate lookup of later formulas. A failing formula logs and yields zero for
// that field; it never aborts the record or the batch.
func (s *CompiledSet) Evaluate(recordID string, fields map[string]decimal.Decimal) map[string]decimal.Decimal {
	results := make(map[string]decimal.Decimal, len(s.names))

	lookupField := func(name string) (decimal.Decimal, bool) {
		if v, ok := results[name]; ok {
			return v, true
		}
		v, ok := fields[name]
		return v, ok
	}

	env := func(name string) (decimal.Decimal, bool) {
		if name == slabRateIdent {
			net, _ := lookupField(netAmountField)
			return SlabRate(net), true
		}
		return lookupField(name)
	}

	for _, name := range s.names {
		value, err := s.trees[name].eval(env)
		if err != nil {
			s.log.WithFields(logger.Fields{
				"source":  s.source,
				"formula": name,
				"record":  recordID,
			}).WithError(err).Warn("formula evaluation failed, defaulting to zero")
			value = decimal.Zero
		}
		results[name] = value
	}

	return results
}
