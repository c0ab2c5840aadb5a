// Package catalog declares every operation the dispatch engine can invoke.
//
// The catalog is pure data: each capability carries a name, a usage hint for
// the model, and a JSON-Schema argument description.  The same schema is
// handed to the model as a tool definition and compiled for validating the
// argument bags the model sends back. The model proposes, the schema
// decides.
//
// Ordering is fixed at declaration and never changes at runtime, so prompts
// and tests are reproducible.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/okanebot/okane/internal/okane/llm"
)

// Capability names.  These are wire contract: the executor's payload shape
// per name must stay stable across versions.
const (
	OpAddExpense     = "add_expense"
	OpDeleteExpense  = "delete_expense"
	OpSummary        = "get_expenses_summary"
	OpListLatest     = "list_latest_expenses"
	OpListAll        = "list_all_expenses"
	OpQueryRange     = "query_expenses_by_range"
	OpCategoryReport = "generate_category_report"
	OpDailyChart     = "generate_daily_chart"
)

// ErrMissingArgument is returned when a required argument is absent.
var ErrMissingArgument = errors.New("catalog: missing required argument")

// ErrInvalidArgument is returned when an argument fails schema validation.
var ErrInvalidArgument = errors.New("catalog: invalid argument")

// Descriptor describes one invocable capability.  Immutable after New.
type Descriptor struct {
	Name        string
	Description string
	// Parameters is the JSON-Schema object sent to the model.
	Parameters map[string]any
	// Required lists the argument names that must be present.
	Required []string

	compiled *jsonschema.Schema
}

// ValidateArguments checks an argument bag against the descriptor.  Unknown
// fields are ignored (the schemas do not forbid additional properties);
// missing required fields fail with ErrMissingArgument, type and enum
// violations with ErrInvalidArgument.
func (d *Descriptor) ValidateArguments(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}

	for _, name := range d.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingArgument, name)
		}
	}

	// jsonschema validates the generic decoded form, so round-trip the bag
	// through encoding/json to erase concrete Go types.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if err := d.compiled.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Catalog is the process-wide capability set, read-only after New.
type Catalog struct {
	ordered []*Descriptor
	byName  map[string]*Descriptor
}

// New builds the capability catalog and compiles every argument schema.
// It fails only on a malformed schema, which is a programming error.
func New() (*Catalog, error) {
	descriptors := []*Descriptor{
		{
			Name: OpAddExpense,
			Description: "Record a new expense. Use when the user mentions spending money, " +
				"buying something, or paying for something.",
			Required: []string{"amount"},
			Parameters: objectSchema(map[string]any{
				"amount": map[string]any{
					"type":             "number",
					"exclusiveMinimum": 0,
					"description":      "Amount spent, e.g. 50 or 12.75.",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Short free-text description of the expense.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Expense category such as food, travel, rent.",
				},
				"date": map[string]any{
					"type":        "string",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
					"description": "Date of the expense as YYYY-MM-DD. Omit for today.",
				},
			}, "amount"),
		},
		{
			Name: OpDeleteExpense,
			Description: "Delete an expense. Without an id the most recently recorded " +
				"expense is deleted.",
			Parameters: objectSchema(map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Identifier of the expense to delete. Omit for the latest one.",
				},
			}),
		},
		{
			Name: OpSummary,
			Description: "Total amount and count of expenses in a period. Use for questions " +
				"like 'how much did I spend this week?'.",
			Required: []string{"period"},
			Parameters: objectSchema(map[string]any{
				"period": map[string]any{
					"type":        "string",
					"enum":        []any{"today", "this_week", "this_month", "all"},
					"description": "Period to summarize. Use 'all' for all-time.",
				},
			}, "period"),
		},
		{
			Name:        OpListLatest,
			Description: "List the most recently recorded expenses, newest first.",
			Parameters: objectSchema(map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     50,
					"description": "How many expenses to return. Defaults to 5.",
				},
			}),
		},
		{
			Name:        OpListAll,
			Description: "List every recorded expense, newest spend date first.",
			Parameters:  objectSchema(map[string]any{}),
		},
		{
			Name: OpQueryRange,
			Description: "List or total expenses between two dates, optionally filtered " +
				"by category.",
			Required: []string{"start_date"},
			Parameters: objectSchema(map[string]any{
				"start_date": map[string]any{
					"type":        "string",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
					"description": "Range start as YYYY-MM-DD.",
				},
				"end_date": map[string]any{
					"type":        "string",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
					"description": "Range end as YYYY-MM-DD. Omit for today.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Only include expenses in this category.",
				},
				"mode": map[string]any{
					"type":        "string",
					"enum":        []any{"list", "total"},
					"description": "Return the matching records or just their total. Defaults to list.",
				},
			}, "start_date"),
		},
		{
			Name: OpCategoryReport,
			Description: "Breakdown of spending by category over a period, with a pie " +
				"chart. Use for 'where did my money go?'.",
			Required: []string{"period"},
			Parameters: objectSchema(map[string]any{
				"period": map[string]any{
					"type":        "string",
					"enum":        []any{"today", "this_week", "this_month", "last_week", "last_month"},
					"description": "Period to report on.",
				},
			}, "period"),
		},
		{
			Name: OpDailyChart,
			Description: "Bar chart of spending per day. Accepts a named period or an " +
				"explicit date range.",
			Parameters: objectSchema(map[string]any{
				"period": map[string]any{
					"type":        "string",
					"enum":        []any{"this_week", "this_month", "last_week", "last_month"},
					"description": "Named period to chart. Ignored when start_date is given.",
				},
				"start_date": map[string]any{
					"type":        "string",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
					"description": "Range start as YYYY-MM-DD.",
				},
				"end_date": map[string]any{
					"type":        "string",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
					"description": "Range end as YYYY-MM-DD. Omit for today.",
				},
			}),
		},
	}

	byName := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		compiled, err := compileSchema(d.Name, d.Parameters)
		if err != nil {
			return nil, fmt.Errorf("catalog: compile %s schema: %w", d.Name, err)
		}
		d.compiled = compiled
		byName[d.Name] = d
	}

	return &Catalog{ordered: descriptors, byName: byName}, nil
}

// List returns all descriptors in their fixed declaration order.
func (c *Catalog) List() []*Descriptor {
	return c.ordered
}

// Get returns the descriptor for name.
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// ToolDefinitions maps the catalog to the tool list sent with every round-1
// completion request.
func (c *Catalog) ToolDefinitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(c.ordered))
	for _, d := range c.ordered {
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return defs
}

// objectSchema builds a JSON-Schema object with the given properties and
// required names.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]any, 0, len(required))
		for _, r := range required {
			req = append(req, r)
		}
		schema["required"] = req
	}
	return schema
}

func compileSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := "okane://capabilities/" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
