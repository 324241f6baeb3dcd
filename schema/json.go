package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/wippyai/capnp-layout/errors"
)

// LoadJSON reads a schema graph in the JSON interchange form produced by
// the front-end parser:
//
//	{"name": "test.capnp", "nodes": [
//	  {"kind": "struct", "name": "Foo", "members": [
//	    {"kind": "field", "name": "a", "ordinal": 0, "type": "List(Text)",
//	     "default": {"list": [{"text": "x"}]}}]}]}
//
// Literal values are single-key objects: void, bool, int, uint, float,
// text, data (base64), list, struct, enum, ref or cap.
func LoadJSON(r io.Reader) (*File, error) {
	var doc fileJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Load("decode schema document", err)
	}
	f := &File{Name: doc.Name}
	for i := range doc.Nodes {
		n, err := doc.Nodes[i].node([]string{doc.Name})
		if err != nil {
			return nil, err
		}
		f.Nodes = append(f.Nodes, n)
	}
	f.Link()
	return f, nil
}

type fileJSON struct {
	Name  string     `json:"name"`
	Nodes []nodeJSON `json:"nodes"`
}

type nodeJSON struct {
	Kind        string           `json:"kind"`
	Name        string           `json:"name"`
	Type        string           `json:"type,omitempty"`
	Value       json.RawMessage  `json:"value,omitempty"`
	Params      []string         `json:"params,omitempty"`
	Members     []memberJSON     `json:"members,omitempty"`
	Enumerants  []enumerantJSON  `json:"enumerants,omitempty"`
	Nested      []nodeJSON       `json:"nested,omitempty"`
	Annotations []annotationJSON `json:"annotations,omitempty"`
}

type memberJSON struct {
	Kind        string           `json:"kind"`
	Name        string           `json:"name"`
	Ordinal     *int             `json:"ordinal,omitempty"`
	Type        string           `json:"type,omitempty"`
	Default     json.RawMessage  `json:"default,omitempty"`
	Members     []memberJSON     `json:"members,omitempty"`
	Annotations []annotationJSON `json:"annotations,omitempty"`
}

type enumerantJSON struct {
	Name        string           `json:"name"`
	Ordinal     *int             `json:"ordinal,omitempty"`
	Annotations []annotationJSON `json:"annotations,omitempty"`
}

type annotationJSON struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

var nodeKinds = map[string]NodeKind{
	"struct":     NodeStruct,
	"enum":       NodeEnum,
	"const":      NodeConst,
	"interface":  NodeInterface,
	"annotation": NodeAnnotation,
}

var memberKinds = map[string]MemberKind{
	"field": MemberField,
	"group": MemberGroup,
	"union": MemberUnion,
}

func (d *nodeJSON) node(scope []string) (*Node, error) {
	path := append(scope[:len(scope):len(scope)], d.Name)
	kind, ok := nodeKinds[d.Kind]
	if !ok {
		return nil, loadError(path, "unknown declaration kind %q", d.Kind)
	}
	n := &Node{Kind: kind, Name: d.Name, Params: d.Params}
	var err error
	if d.Type != "" {
		if n.Type, err = ParseType(d.Type); err != nil {
			return nil, loadError(path, "%v", err)
		}
	}
	if n.Value, err = decodeValue(d.Value); err != nil {
		return nil, loadError(path, "value: %v", err)
	}
	if n.Annotations, err = annotations(d.Annotations); err != nil {
		return nil, loadError(path, "%v", err)
	}
	for i := range d.Members {
		m, err := d.Members[i].member(path)
		if err != nil {
			return nil, err
		}
		n.Members = append(n.Members, m)
	}
	for i, e := range d.Enumerants {
		ord := i
		if e.Ordinal != nil {
			if *e.Ordinal < 0 {
				return nil, loadError(append(path, e.Name), "negative ordinal %d", *e.Ordinal)
			}
			ord = *e.Ordinal
		}
		anns, err := annotations(e.Annotations)
		if err != nil {
			return nil, loadError(append(path, e.Name), "%v", err)
		}
		n.Enumerants = append(n.Enumerants, Enumerant{Name: e.Name, Ordinal: ord, Annotations: anns})
	}
	for i := range d.Nested {
		c, err := d.Nested[i].node(path)
		if err != nil {
			return nil, err
		}
		n.Nested = append(n.Nested, c)
	}
	return n, nil
}

func (d *memberJSON) member(scope []string) (*Member, error) {
	path := append(scope[:len(scope):len(scope)], d.Name)
	kind, ok := memberKinds[d.Kind]
	if !ok {
		return nil, loadError(path, "unknown member kind %q", d.Kind)
	}
	m := &Member{Kind: kind, Name: d.Name, Ordinal: NoOrdinal}
	if d.Ordinal != nil {
		if *d.Ordinal < 0 {
			return nil, loadError(path, "negative ordinal %d", *d.Ordinal)
		}
		m.Ordinal = *d.Ordinal
	} else if kind == MemberField {
		return nil, loadError(path, "field has no ordinal")
	}
	var err error
	if d.Type != "" {
		if m.Type, err = ParseType(d.Type); err != nil {
			return nil, loadError(path, "%v", err)
		}
	}
	if m.Default, err = decodeValue(d.Default); err != nil {
		return nil, loadError(path, "default: %v", err)
	}
	if m.Annotations, err = annotations(d.Annotations); err != nil {
		return nil, loadError(path, "%v", err)
	}
	for i := range d.Members {
		c, err := d.Members[i].member(path)
		if err != nil {
			return nil, err
		}
		m.Members = append(m.Members, c)
	}
	return m, nil
}

func annotations(in []annotationJSON) ([]Annotation, error) {
	var out []Annotation
	for _, a := range in {
		v, err := decodeValue(a.Value)
		if err != nil {
			return nil, fmt.Errorf("annotation %s: %w", a.Name, err)
		}
		out = append(out, Annotation{Name: a.Name, Value: v})
	}
	return out, nil
}

func loadError(path []string, format string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidSchema).
		Path(path...).
		Detail(format, args...).
		Build()
}

func decodeValue(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("literal must have exactly one key, got %d", len(obj))
	}
	for key, body := range obj {
		return decodeTagged(key, body)
	}
	return nil, nil
}

func decodeTagged(key string, body json.RawMessage) (Value, error) {
	switch key {
	case "void":
		return Void{}, nil
	case "bool":
		var b bool
		err := json.Unmarshal(body, &b)
		return Bool(b), err
	case "int":
		var i int64
		err := json.Unmarshal(body, &i)
		return Int(i), err
	case "uint":
		var u uint64
		err := json.Unmarshal(body, &u)
		return Uint(u), err
	case "float":
		return decodeFloat(body)
	case "text":
		var s string
		err := json.Unmarshal(body, &s)
		return Text(s), err
	case "data":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		return Data(b), err
	case "enum":
		var s string
		err := json.Unmarshal(body, &s)
		return Enum(s), err
	case "ref":
		var s string
		err := json.Unmarshal(body, &s)
		return Ref(s), err
	case "cap":
		var u uint32
		err := json.Unmarshal(body, &u)
		return Capability(u), err
	case "raw":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		return RawPointer{Message: b}, err
	case "list":
		var elems []json.RawMessage
		if err := json.Unmarshal(body, &elems); err != nil {
			return nil, err
		}
		out := make(List, 0, len(elems))
		for i, e := range elems {
			v, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case "struct":
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make(Struct, 0, len(names))
		for _, name := range names {
			v, err := decodeValue(fields[name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, FieldValue{Name: name, Value: v})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown literal kind %q", key)
}

// ParseValue parses a single literal in the tagged JSON form accepted
// by LoadJSON, e.g. {"struct": {"a": {"int": 1}}}.
func ParseValue(data []byte) (Value, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, errors.Load("decode value", err)
	}
	return v, nil
}

// MarshalValue renders v in the tagged JSON form read by ParseValue.
// Struct members keep their order.
func MarshalValue(v Value) ([]byte, error) {
	var b strings.Builder
	if err := marshalValue(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func marshalValue(b *strings.Builder, v Value) error {
	tagged := func(key string, body any) error {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "{%q:%s}", key, raw)
		return nil
	}
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case Void:
		b.WriteString(`{"void":null}`)
	case Bool:
		return tagged("bool", bool(x))
	case Int:
		return tagged("int", int64(x))
	case Uint:
		return tagged("uint", uint64(x))
	case Float:
		f := float64(x)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return tagged("float", FormatFloat(f, 64))
		}
		return tagged("float", f)
	case Text:
		return tagged("text", string(x))
	case Data:
		return tagged("data", base64.StdEncoding.EncodeToString(x))
	case Enum:
		return tagged("enum", string(x))
	case Ref:
		return tagged("ref", string(x))
	case Capability:
		return tagged("cap", uint32(x))
	case RawPointer:
		return tagged("raw", base64.StdEncoding.EncodeToString(x.Message))
	case List:
		b.WriteString(`{"list":[`)
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := marshalValue(b, e); err != nil {
				return err
			}
		}
		b.WriteString("]}")
	case Struct:
		b.WriteString(`{"struct":{`)
		for i, f := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", f.Name)
			if err := marshalValue(b, f.Value); err != nil {
				return err
			}
		}
		b.WriteString("}}")
	default:
		return fmt.Errorf("cannot marshal %T", v)
	}
	return nil
}

// decodeFloat accepts a JSON number or one of "inf", "-inf", "nan".
func decodeFloat(body json.RawMessage) (Value, error) {
	var s string
	if json.Unmarshal(body, &s) == nil {
		switch s {
		case "inf":
			return Float(math.Inf(1)), nil
		case "-inf":
			return Float(math.Inf(-1)), nil
		case "nan":
			return Float(math.NaN()), nil
		}
		return nil, fmt.Errorf("invalid float %q", s)
	}
	var f float64
	err := json.Unmarshal(body, &f)
	return Float(f), err
}

// ParseType parses a type expression such as "List(List(Text))" or
// "Pair(Text, Foo.Bar)".
func ParseType(s string) (TypeExpr, error) {
	p := typeParser{src: s}
	t, err := p.expr()
	if err != nil {
		return TypeExpr{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeExpr{}, fmt.Errorf("type %q: trailing input at %d", s, p.pos)
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) expr() (TypeExpr, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("(), ", rune(p.src[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return TypeExpr{}, fmt.Errorf("type %q: expected name at %d", p.src, start)
	}
	t := TypeExpr{Name: p.src[start:p.pos]}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return t, nil
	}
	p.pos++
	for {
		arg, err := p.expr()
		if err != nil {
			return TypeExpr{}, err
		}
		t.Args = append(t.Args, arg)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return TypeExpr{}, fmt.Errorf("type %q: unclosed argument list", p.src)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return t, nil
		default:
			return TypeExpr{}, fmt.Errorf("type %q: unexpected %q at %d", p.src, p.src[p.pos], p.pos)
		}
	}
}
