package filter

import (
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/value"
)

// Expression is a compiled filter expression. It is immutable and safe
// for concurrent use.
type Expression struct {
	source string
	root   node
}

// Compile parses expr.
func Compile(expr string) (*Expression, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return &Expression{source: expr, root: root}, nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(expr string) *Expression {
	x, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return x
}

// String returns the source expression.
func (x *Expression) String() string { return x.source }

// Match reports whether e satisfies the expression.
func (x *Expression) Match(e event.Event) bool {
	return x.root.eval(Fields(e))
}

// Exclude returns a keep predicate that drops events matching x.
func (x *Expression) Exclude() func(event.Event) bool {
	return func(e event.Event) bool { return !x.Match(e) }
}

// Fields flattens e into the names an expression can reference.
func Fields(e event.Event) map[string]any {
	fields := map[string]any{"type": string(e.Kind())}
	if id, ok := e.ProfileID(); ok {
		fields["profileId"] = id
	}

	switch e.Kind() {
	case event.KindTrack:
		p, _ := e.Track()
		fields["name"] = p.Name
		addProperties(fields, p.Properties)
	case event.KindIdentify:
		p, _ := e.Identify()
		setNonEmpty(fields, "firstName", p.FirstName)
		setNonEmpty(fields, "lastName", p.LastName)
		setNonEmpty(fields, "email", p.Email)
		setNonEmpty(fields, "avatar", p.Avatar)
		addProperties(fields, p.Properties)
	case event.KindAlias:
		p, _ := e.Alias()
		fields["alias"] = p.Alias
	case event.KindIncrement:
		p, _ := e.Increment()
		fields["property"] = p.Property
	case event.KindDecrement:
		p, _ := e.Decrement()
		fields["property"] = p.Property
	}
	return fields
}

func setNonEmpty(fields map[string]any, key, s string) {
	if s != "" {
		fields[key] = s
	}
}

func addProperties(fields map[string]any, props value.Properties) {
	for k, v := range props {
		fields["properties."+k] = scalar(v)
	}
}

// scalar maps a property value onto the operand types: string, float64,
// bool, or nil. Lists and objects compare by their JSON text.
func scalar(v value.Value) any {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNull:
		return nil
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(data)
	}
}
