package formula

import (
	"io"
	"strings"
	"testing"

	"order-reconciliation-service/internal/models"
	"order-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.JSONFormat,
		Output: io.Discard,
	})
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return log
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func evalString(t *testing.T, expr string, env Env) (decimal.Decimal, error) {
	t.Helper()
	root, err := parseExpression(expr)
	if err != nil {
		t.Fatalf("parseExpression(%q): %v", expr, err)
	}
	if env == nil {
		env = func(string) (decimal.Decimal, bool) { return decimal.Zero, false }
	}
	return root.eval(env)
}

func TestParseExpression_Arithmetic(t *testing.T) {
	env := Env(func(name string) (decimal.Decimal, bool) {
		switch name {
		case "subtotal":
			return dec("500"), true
		case "discount":
			return dec("50"), true
		}
		return decimal.Zero, false
	})

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"addition", "1 + 2", "3"},
		{"precedence", "2 + 3 * 4", "14"},
		{"parens override precedence", "(2 + 3) * 4", "20"},
		{"left associative subtraction", "10 - 4 - 3", "3"},
		{"division", "9 / 4", "2.25"},
		{"unary minus", "-5 + 2", "-3"},
		{"unary minus on parens", "-(2 + 3)", "-5"},
		{"identifiers", "subtotal - discount", "450"},
		{"unbound identifier is zero", "subtotal + missing", "500"},
		{"decimal literal", "100 * 0.0115", "1.15"},
		{"whitespace ignored", "  subtotal   *2 ", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalString(t, tt.expr, env)
			if err != nil {
				t.Fatalf("eval(%q): %v", tt.expr, err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("eval(%q) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"dangling operator", "1 +"},
		{"double dot number", "1.2.3"},
		{"missing closing paren", "(1 + 2"},
		{"unexpected character", "a @ b"},
		{"trailing garbage", "1 + 2 )"},
		{"empty", ""},
		{"bare star is not unary", "* 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseExpression(tt.expr); err == nil {
				t.Errorf("parseExpression(%q) succeeded, want error", tt.expr)
			}
		})
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	_, err := evalString(t, "10 / (2 - 2)", nil)
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("got %v, want division by zero error", err)
	}
}

func TestSlabRate_Boundaries(t *testing.T) {
	tests := []struct {
		net  string
		want string
	}{
		{"0", "0.165"},
		{"399.99", "0.165"},
		{"400", "0.1525"},
		{"449.99", "0.1525"},
		{"450", "0.145"},
		{"499.99", "0.145"},
		{"500", "0.1375"},
		{"550", "0.1325"},
		{"599.99", "0.1325"},
		{"600", "0.1275"},
		{"10000", "0.1275"},
	}

	for _, tt := range tests {
		t.Run("net "+tt.net, func(t *testing.T) {
			got := SlabRate(dec(tt.net))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("SlabRate(%s) = %s, want %s", tt.net, got, tt.want)
			}
		})
	}
}

func TestResolver_VerbatimFallback(t *testing.T) {
	resolver := NewResolver(models.SourcePOS, []models.FieldMapping{
		{DataSource: models.SourcePOS, ReportColumn: "BillSubtotal", PhysicalField: "bill_subtotal"},
		{DataSource: models.SourceZomato, ReportColumn: "Subtotal", PhysicalField: "net_amount"},
	})

	if resolver.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (other-source rows dropped)", resolver.Len())
	}
	if got := resolver.Resolve("BillSubtotal"); got != "bill_subtotal" {
		t.Errorf("Resolve(BillSubtotal) = %q, want bill_subtotal", got)
	}
	// Unmapped names pass through unchanged and are read as physical fields.
	if got := resolver.Resolve("packing_charge"); got != "packing_charge" {
		t.Errorf("Resolve(packing_charge) = %q, want verbatim fallback", got)
	}
}

func TestCompile_InlinesReferences(t *testing.T) {
	defs := []Definition{
		{Name: "net_amount", Expression: "BillSubtotal - Discount"},
		{Name: "tds_amount", Expression: "net_amount * 0.01"},
	}
	resolver := NewResolver(models.SourcePOS, DefaultFieldMappings())

	set, err := Compile(models.SourcePOS, defs, resolver, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"bill_subtotal":   dec("500"),
		"discount_amount": dec("50"),
	})
	if !results["net_amount"].Equal(dec("450")) {
		t.Errorf("net_amount = %s, want 450", results["net_amount"])
	}
	if !results["tds_amount"].Equal(dec("4.5")) {
		t.Errorf("tds_amount = %s, want 4.5", results["tds_amount"])
	}
}

func TestCompile_ForwardReference(t *testing.T) {
	// Resolution is independent of declaration order even though
	// evaluation is not: the reference is inlined, so tds_amount sees
	// the net_amount expression rather than a stale result.
	defs := []Definition{
		{Name: "tds_amount", Expression: "net_amount * 0.01"},
		{Name: "net_amount", Expression: "bill_subtotal - discount_amount"},
	}

	set, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"bill_subtotal":   dec("500"),
		"discount_amount": dec("50"),
	})
	if !results["tds_amount"].Equal(dec("4.5")) {
		t.Errorf("tds_amount = %s, want 4.5", results["tds_amount"])
	}
}

func TestCompile_CycleDetected(t *testing.T) {
	defs := []Definition{
		{Name: "a", Expression: "b + 1"},
		{Name: "b", Expression: "a + 1"},
	}
	_, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err == nil || !strings.Contains(err.Error(), "reference cycle") {
		t.Fatalf("got %v, want reference cycle error", err)
	}
}

func TestCompile_SelfReferenceDetected(t *testing.T) {
	defs := []Definition{
		{Name: "a", Expression: "a * 2"},
	}
	if _, err := Compile(models.SourcePOS, defs, nil, testLogger(t)); err == nil {
		t.Fatal("self-referencing formula compiled, want cycle error")
	}
}

func TestCompile_DuplicateName(t *testing.T) {
	defs := []Definition{
		{Name: "net_amount", Expression: "1"},
		{Name: "net_amount", Expression: "2"},
	}
	_, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err == nil || !strings.Contains(err.Error(), "duplicate formula") {
		t.Fatalf("got %v, want duplicate formula error", err)
	}
}

func TestCompile_MalformedExpressionYieldsZero(t *testing.T) {
	defs := []Definition{
		{Name: "net_amount", Expression: "bill_subtotal - discount_amount"},
		{Name: "broken", Expression: "net_amount +"},
		{Name: "tds_amount", Expression: "net_amount * 0.01"},
	}
	set, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"bill_subtotal":   dec("500"),
		"discount_amount": dec("50"),
	})
	if !results["broken"].IsZero() {
		t.Errorf("broken = %s, want 0 for an unparseable formula", results["broken"])
	}
	if !results["net_amount"].Equal(dec("450")) {
		t.Errorf("net_amount = %s, want 450 (earlier formulas unaffected)", results["net_amount"])
	}
	if !results["tds_amount"].Equal(dec("4.5")) {
		t.Errorf("tds_amount = %s, want 4.5 (later formulas unaffected)", results["tds_amount"])
	}
}

func TestCompile_ReferenceToMalformedFormulaIsZero(t *testing.T) {
	defs := []Definition{
		{Name: "broken", Expression: ")("},
		{Name: "padded", Expression: "broken + 7"},
	}
	set, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", nil)
	if !results["padded"].Equal(dec("7")) {
		t.Errorf("padded = %s, want 7 (broken reference inlined as zero)", results["padded"])
	}
}

func TestCompile_FormulaNamesShadowFields(t *testing.T) {
	// A formula named like a physical field wins over the raw field
	// value for every expression referencing that name.
	defs := []Definition{
		{Name: "net_amount", Expression: "100"},
		{Name: "tds_amount", Expression: "net_amount * 0.01"},
	}
	set, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"net_amount": dec("9999"),
	})
	if !results["tds_amount"].Equal(dec("1")) {
		t.Errorf("tds_amount = %s, want 1 (formula shadows the field)", results["tds_amount"])
	}
}

func TestEvaluate_DefaultPosFormulas(t *testing.T) {
	resolver := NewResolver(models.SourcePOS, DefaultFieldMappings())
	set, err := Compile(models.SourcePOS, DefaultDefinitions(models.SourcePOS), resolver, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fields := map[string]decimal.Decimal{
		"bill_subtotal":   dec("500"),
		"discount_amount": dec("50"),
		"packing_charge":  dec("20"),
		"gst_collected":   dec("25"),
	}
	results := set.Evaluate("ord-1", fields)

	want := map[string]string{
		"gross_amount":         "520",
		"net_amount":           "450",
		"tax_paid_by_customer": "25",
		"commission_value":     "65.25",    // 450 * 0.145
		"pg_applied_on":        "475",      // 450 + 25
		"pg_charge":            "5.4625",   // 475 * 0.0115
		"zomato_fee_tax":       "12.72825", // (65.25 + 5.4625) * 0.18
		"tds_amount":           "4.5",
		"final_amount":         "387.05925",
	}
	for name, expected := range want {
		got, ok := results[name]
		if !ok {
			t.Errorf("missing result %q", name)
			continue
		}
		if !got.Equal(dec(expected)) {
			t.Errorf("%s = %s, want %s", name, got, expected)
		}
	}
}

func TestEvaluate_SlabRateUsesComputedNetAmount(t *testing.T) {
	// net_amount is a formula here, so the slab lookup must prefer the
	// formula result (350, rate 0.165) over any raw field value.
	defs := []Definition{
		{Name: "net_amount", Expression: "bill_subtotal - discount_amount"},
		{Name: "commission_value", Expression: "net_amount * slab_rate"},
	}
	set, err := Compile(models.SourcePOS, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"bill_subtotal":   dec("400"),
		"discount_amount": dec("50"),
		"net_amount":      dec("600"),
	})
	if !results["commission_value"].Equal(dec("57.75")) {
		t.Errorf("commission_value = %s, want 57.75 (350 * 0.165)", results["commission_value"])
	}
}

func TestEvaluate_FailureDefaultsToZero(t *testing.T) {
	defs := []Definition{
		{Name: "ratio", Expression: "net_amount / gross_amount"},
		{Name: "doubled", Expression: "net_amount * 2"},
	}
	set, err := Compile(models.SourceZomato, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// gross_amount is unbound, so the division fails; the record still
	// gets a full result set with the failing field zeroed.
	results := set.Evaluate("ord-1", map[string]decimal.Decimal{
		"net_amount": dec("450"),
	})
	if !results["ratio"].IsZero() {
		t.Errorf("ratio = %s, want 0 after evaluation failure", results["ratio"])
	}
	if !results["doubled"].Equal(dec("900")) {
		t.Errorf("doubled = %s, want 900 (later formulas unaffected)", results["doubled"])
	}
}

func TestCompiledSet_NamesDeclarationOrder(t *testing.T) {
	defs := DefaultDefinitions(models.SourceZomato)
	set, err := Compile(models.SourceZomato, defs, nil, testLogger(t))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	names := set.Names()
	if len(names) != len(defs) {
		t.Fatalf("Names() has %d entries, want %d", len(names), len(defs))
	}
	for i, def := range defs {
		if names[i] != def.Name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], def.Name)
		}
	}
}

func TestDefinitionsFromModels(t *testing.T) {
	rows := []models.FormulaDefinition{
		{DataSource: models.SourcePOS, Name: "net_amount", Expression: "a - b", Position: 1},
		{DataSource: models.SourcePOS, Name: "tds_amount", Expression: "net_amount * 0.01", Position: 2},
	}
	defs := DefinitionsFromModels(rows)
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Name != "net_amount" || defs[0].Expression != "a - b" {
		t.Errorf("unexpected first definition %+v", defs[0])
	}
}
