// Package xmlser builds solver model descriptions element by element.
package xmlser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-gl/mathgl/mgl64"
)

// fragmentRoot wraps user fragments so several top-level elements parse as one document.
const fragmentRoot = "dynbridge_fragment"

// Document is a stack-based XML builder: Open pushes an element, Attr sets
// attributes on the innermost open element, Close pops it.
type Document struct {
	doc   *etree.Document
	stack []*etree.Element
}

func New(root string) *Document {
	doc := etree.NewDocument()
	el := doc.CreateElement(root)
	return &Document{doc: doc, stack: []*etree.Element{el}}
}

func (d *Document) Open(name string) {
	el := d.Current().CreateElement(name)
	d.stack = append(d.stack, el)
}

// Enter makes an element created earlier the current one; Close leaves it.
func (d *Document) Enter(el *etree.Element) {
	d.stack = append(d.stack, el)
}

// Prune removes childless, attribute-less direct children of the root.
func (d *Document) Prune() {
	root := d.Root()
	for _, el := range root.ChildElements() {
		if len(el.ChildElements()) == 0 && len(el.Attr) == 0 {
			root.RemoveChild(el)
		}
	}
}

// Close pops the innermost element; the root is never popped.
func (d *Document) Close() {
	if len(d.stack) > 1 {
		d.stack = d.stack[:len(d.stack)-1]
	}
}

func (d *Document) Current() *etree.Element {
	return d.stack[len(d.stack)-1]
}

func (d *Document) Depth() int {
	return len(d.stack) - 1
}

// Attr formats value according to its type and sets it on the current element.
func (d *Document) Attr(name string, value any) {
	d.Current().CreateAttr(name, Format(value))
}

// Leaf writes a childless element with the given attribute pairs.
func (d *Document) Leaf(name string, kv ...any) {
	d.Open(name)
	for i := 0; i+1 < len(kv); i += 2 {
		d.Attr(fmt.Sprint(kv[i]), kv[i+1])
	}
	d.Close()
}

// Splice parses fragment and appends its top-level elements to the current element.
func (d *Document) Splice(fragment string) error {
	els, err := ParseFragment(fragment)
	if err != nil {
		return err
	}
	cur := d.Current()
	for _, el := range els {
		cur.AddChild(el)
	}
	return nil
}

func (d *Document) Root() *etree.Element {
	return d.stack[0]
}

func (d *Document) String() (string, error) {
	d.doc.Indent(2)
	return d.doc.WriteToString()
}

// ParseFragment parses zero or more sibling elements.
func ParseFragment(fragment string) ([]*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString("<" + fragmentRoot + ">" + fragment + "</" + fragmentRoot + ">"); err != nil {
		return nil, fmt.Errorf("xmlser: parse fragment: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, nil
	}
	children := root.ChildElements()
	out := make([]*etree.Element, 0, len(children))
	for _, c := range children {
		out = append(out, c.Copy())
	}
	return out, nil
}

func Format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case mgl64.Vec3:
		return JoinFloats(v[:]...)
	case mgl64.Quat:
		return JoinFloats(v.W, v.V[0], v.V[1], v.V[2])
	case []float64:
		return JoinFloats(v...)
	case []int:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = strconv.Itoa(x)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

func JoinFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, x := range vs {
		parts[i] = formatFloat(x)
	}
	return strings.Join(parts, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseFloats reads a whitespace separated list, padding with dflt up to n values.
func ParseFloats(s string, n int, dflt ...float64) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, max(n, len(fields)))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("xmlser: %q: %w", s, err)
		}
		out = append(out, v)
	}
	for len(out) < n {
		if len(out) < len(dflt) {
			out = append(out, dflt[len(out)])
		} else {
			out = append(out, 0)
		}
	}
	return out, nil
}
