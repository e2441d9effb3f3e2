package solver

import (
	"fmt"

	"github.com/beevik/etree"
)

// Index assigns per-kind ids to the named elements of a description in
// document order. Body 0 is the world body.
type Index struct {
	names [kindCount][]string
	ids   [kindCount]map[string]int
	elems [kindCount][]*etree.Element
}

var elementKinds = map[string]Kind{
	"body":      KindBody,
	"joint":     KindJoint,
	"freejoint": KindJoint,
	"geom":      KindGeom,
	"site":      KindSite,
	"motor":     KindActuator,
	"general":   KindActuator,
	"velocity":  KindActuator,
	"position":  KindActuator,
	"force":     KindSensor,
	"torque":    KindSensor,
	"weld":      KindEquality,
	"connect":   KindEquality,
	"spatial":   KindTendon,
}

// sections maps an element to the top-level section it must appear under;
// elements such as "force" are only meaningful there.
var sections = map[string]string{
	"body": "worldbody", "joint": "worldbody", "freejoint": "worldbody", "geom": "worldbody", "site": "worldbody",
	"motor": "actuator", "general": "actuator", "velocity": "actuator", "position": "actuator",
	"force": "sensor", "torque": "sensor",
	"weld": "equality", "connect": "equality",
	"spatial": "tendon",
}

// NewIndex walks root and indexes every recognized element.
func NewIndex(root *etree.Element) *Index {
	ix := &Index{}
	for k := range ix.ids {
		ix.ids[k] = make(map[string]int)
	}
	ix.add(KindBody, "world", root)
	for _, section := range root.ChildElements() {
		ix.walk(section.Tag, section)
	}
	return ix
}

func (ix *Index) walk(section string, el *etree.Element) {
	for _, c := range el.ChildElements() {
		if k, ok := elementKinds[c.Tag]; ok && sections[c.Tag] == section {
			ix.add(k, c.SelectAttrValue("name", ""), c)
		}
		ix.walk(section, c)
	}
}

func (ix *Index) add(k Kind, name string, el *etree.Element) {
	id := len(ix.names[k])
	if name == "" {
		name = fmt.Sprintf("%s%d", k, id)
	}
	ix.names[k] = append(ix.names[k], name)
	ix.elems[k] = append(ix.elems[k], el)
	if _, dup := ix.ids[k][name]; !dup {
		ix.ids[k][name] = id
	}
}

func (ix *Index) Lookup(k Kind, name string) int {
	if id, ok := ix.ids[k][name]; ok {
		return id
	}
	return -1
}

func (ix *Index) Count(k Kind) int {
	return len(ix.names[k])
}

func (ix *Index) Name(k Kind, id int) string {
	if id < 0 || id >= len(ix.names[k]) {
		return ""
	}
	return ix.names[k][id]
}

// Element returns the description element of an id, nil when out of range.
func (ix *Index) Element(k Kind, id int) *etree.Element {
	if id < 0 || id >= len(ix.elems[k]) {
		return nil
	}
	return ix.elems[k][id]
}

// Duplicates lists names declared more than once for a kind.
func (ix *Index) Duplicates(k Kind) []string {
	seen := make(map[string]int)
	var dups []string
	for _, n := range ix.names[k] {
		seen[n]++
		if seen[n] == 2 {
			dups = append(dups, n)
		}
	}
	return dups
}
