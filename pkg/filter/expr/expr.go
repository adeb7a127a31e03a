// Package expr compiles textual filter expressions into filters.
//
// The language is a boolean combination of field conditions:
//
//	age >= 21 AND NOT (country = "US" OR country IS NULL)
//	name IPREFIX 'ada' OR email ICONTAINS "@example."
//
// Keywords are case-insensitive. Operators are = != <> < <= > >= and the
// string operators PREFIX SUFFIX CONTAINS with their case-insensitive forms
// IPREFIX ISUFFIX ICONTAINS. Literals are converted to the type the schema
// declares for the field, so a condition on an unknown field or with a
// literal of the wrong kind is rejected when the expression is compiled.
package expr

import (
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// Parse compiles text against s. Blank text yields filter.All.
func Parse(text string, s *schema.Schema) (filter.Filter, error) {
	if strings.TrimSpace(text) == "" {
		return filter.All, nil
	}
	ast := &expression{}
	if err := parser.ParseString(text, ast); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument, "invalid filter expression").
			WithDetail("expression", text)
	}
	c := compiler{schema: s}
	f, err := c.expression(ast)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			e.WithDetail("expression", text)
		}
		return nil, err
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string, s *schema.Schema) filter.Filter {
	f, err := Parse(text, s)
	if err != nil {
		panic(err)
	}
	return f
}

type compiler struct {
	schema *schema.Schema
}

func (c compiler) expression(e *expression) (filter.Filter, error) {
	if len(e.Or) == 1 {
		return c.and(e.Or[0])
	}
	b := filter.NewOrBuilder()
	for _, a := range e.Or {
		f, err := c.and(a)
		if err != nil {
			return nil, err
		}
		b.Add(f)
	}
	return b.Build(), nil
}

func (c compiler) and(a *andCondition) (filter.Filter, error) {
	if len(a.And) == 1 {
		return c.term(a.And[0])
	}
	b := filter.NewAndBuilder()
	for _, t := range a.And {
		f, err := c.term(t)
		if err != nil {
			return nil, err
		}
		b.Add(f)
	}
	return b.Build(), nil
}

func (c compiler) term(t *term) (filter.Filter, error) {
	var (
		f   filter.Filter
		err error
	)
	if t.Expr != nil {
		f, err = c.expression(t.Expr)
	} else {
		f, err = c.condition(t.Cond)
	}
	if err != nil {
		return nil, err
	}
	if t.Not {
		f = filter.Not(f)
	}
	return f, nil
}

func (c compiler) condition(cond *condition) (filter.Filter, error) {
	field, ok := c.schema.Lookup(cond.Field)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
			WithDetail("field", cond.Field).
			WithDetail("schema", c.schema.Name())
	}
	if cond.Null != nil {
		if cond.Null.Not {
			return filter.NotNull(field.Name), nil
		}
		return filter.IsNull(field.Name), nil
	}

	op := strings.ToUpper(cond.Op)
	if op == "<>" {
		op = "!="
	}
	v := cond.Value

	switch op {
	case "PREFIX", "SUFFIX", "CONTAINS", "IPREFIX", "ISUFFIX", "ICONTAINS":
		text, ok := v.text()
		if !ok {
			return nil, badOperand(field, op, "a string")
		}
		ignoreCase := strings.HasPrefix(op, "I")
		switch strings.TrimPrefix(op, "I") {
		case "PREFIX":
			return filter.StartsWith(field.Name, text, ignoreCase), nil
		case "SUFFIX":
			return filter.EndsWith(field.Name, text, ignoreCase), nil
		default:
			return filter.Contains(field.Name, text, ignoreCase), nil
		}
	}

	if v.Null {
		switch op {
		case "=":
			return filter.IsNull(field.Name), nil
		case "!=":
			return filter.NotNull(field.Name), nil
		}
		return nil, badOperand(field, op, "a non-null value")
	}

	if field.Logical == "timestamp-millis" || field.Logical == "timestamp-micros" || field.Logical == "date" {
		return c.timeCondition(field, op, v)
	}

	switch field.Type {
	case schema.TypeInt, schema.TypeLong:
		if v.Number == nil {
			return nil, badOperand(field, op, "a number")
		}
		if n, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
			return ordered(field.Name, op, n), nil
		}
		f, err := strconv.ParseFloat(*v.Number, 64)
		if err != nil {
			return nil, badOperand(field, op, "a number")
		}
		return ordered(field.Name, op, f), nil

	case schema.TypeFloat, schema.TypeDouble:
		if v.Number == nil {
			return nil, badOperand(field, op, "a number")
		}
		f, err := strconv.ParseFloat(*v.Number, 64)
		if err != nil {
			return nil, badOperand(field, op, "a number")
		}
		return ordered(field.Name, op, f), nil

	case schema.TypeBoolean:
		if v.Bool == nil || (op != "=" && op != "!=") {
			return nil, badOperand(field, op, "true or false with = or !=")
		}
		b := strings.EqualFold(*v.Bool, "true")
		if op == "=" {
			return filter.EQ(field.Name, b), nil
		}
		return filter.NE(field.Name, b), nil

	case schema.TypeString, schema.TypeEnum:
		if v.Str == nil {
			return nil, badOperand(field, op, "a quoted string")
		}
		return ordered(field.Name, op, *v.Str), nil

	case schema.TypeBytes, schema.TypeFixed:
		if v.Str == nil || (op != "=" && op != "!=") {
			return nil, badOperand(field, op, "a quoted string with = or !=")
		}
		if op == "=" {
			return filter.EQ(field.Name, []byte(*v.Str)), nil
		}
		return filter.NE(field.Name, []byte(*v.Str)), nil
	}

	// unions of several types and complex values compare by string form
	text, ok := v.text()
	if !ok {
		return nil, badOperand(field, op, "a string or number")
	}
	return stringCompare(field.Name, op, text), nil
}

func (c compiler) timeCondition(field schema.Field, op string, v *operand) (filter.Filter, error) {
	if v.Str == nil {
		return nil, badOperand(field, op, "a quoted RFC 3339 time or date")
	}
	at, err := time.Parse(time.RFC3339Nano, *v.Str)
	if err != nil {
		at, err = time.Parse(time.DateOnly, *v.Str)
	}
	if err != nil {
		return nil, badOperand(field, op, "a quoted RFC 3339 time or date")
	}
	accept := acceptFor(op)
	name := field.Name
	return filter.Func(func(r *record.Record) (bool, error) {
		got, err := record.Field[time.Time](r, name)
		if err != nil {
			return false, err
		}
		return accept(got.Compare(at)), nil
	}), nil
}

func ordered[T int64 | float64 | string](field, op string, v T) filter.Filter {
	switch op {
	case "=":
		return filter.EQ(field, v)
	case "!=":
		return filter.NE(field, v)
	case "<":
		return filter.LT(field, v)
	case "<=":
		return filter.LE(field, v)
	case ">":
		return filter.GT(field, v)
	default:
		return filter.GE(field, v)
	}
}

func stringCompare(field, op, v string) filter.Filter {
	switch op {
	case "=":
		return filter.StrEQ(field, v, false)
	case "!=":
		return filter.StrNE(field, v, false)
	case "<":
		return filter.StrLT(field, v, false)
	case "<=":
		return filter.StrLE(field, v, false)
	case ">":
		return filter.StrGT(field, v, false)
	default:
		return filter.StrGE(field, v, false)
	}
}

func acceptFor(op string) func(int) bool {
	switch op {
	case "=":
		return func(c int) bool { return c == 0 }
	case "!=":
		return func(c int) bool { return c != 0 }
	case "<":
		return func(c int) bool { return c < 0 }
	case "<=":
		return func(c int) bool { return c <= 0 }
	case ">":
		return func(c int) bool { return c > 0 }
	default:
		return func(c int) bool { return c >= 0 }
	}
}

// text returns the operand as a string for string operators.
func (o *operand) text() (string, bool) {
	switch {
	case o.Str != nil:
		return *o.Str, true
	case o.Number != nil:
		return *o.Number, true
	case o.Bool != nil:
		return strings.ToLower(*o.Bool), true
	}
	return "", false
}

func badOperand(f schema.Field, op, want string) error {
	return errors.Newf(errors.ErrorTypeInvalidArgument, "%s %s needs %s", f.Name, op, want).
		WithDetail("field", f.Name).
		WithDetail("field_type", f.Type)
}
