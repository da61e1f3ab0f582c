package pptxpkg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// LinkMode selects where slide-jump hyperlinks are attached.
type LinkMode string

const (
	// LinkText links every text run of the shape.
	LinkText LinkMode = "text"
	// LinkOverlay also links the shape itself so its whole area is clickable.
	LinkOverlay LinkMode = "overlay"
)

// ParseLinkMode validates a link mode name. An empty name selects LinkText.
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LinkText:
		return LinkText, nil
	case LinkOverlay:
		return LinkOverlay, nil
	}
	return "", fmt.Errorf("unknown link mode %q (want %q or %q)", s, LinkText, LinkOverlay)
}

const actionSlideJump = "ppaction://hlinksldjump"

// Link is a hyperlink from a shape on one slide to another slide. Shape is
// the shape's position among the slide's shapes in drawing order; Text, when
// set, must match the shape's text and is used to find the shape if the
// position is off.
type Link struct {
	FromSlide int
	Shape     int
	Text      string
	ToSlide   int
	Tooltip   string
}

// LinkAll adds the links to the package and reports how many were placed.
// Links whose shape can't be found are skipped.
func (p *Package) LinkAll(links []Link, mode LinkMode) (int, error) {
	slides, err := p.Slides()
	if err != nil {
		return 0, err
	}
	bySlide := make(map[int][]Link)
	for _, l := range links {
		if l.FromSlide < 0 || l.FromSlide >= len(slides) || l.ToSlide < 0 || l.ToSlide >= len(slides) {
			return 0, fmt.Errorf("link %d -> %d outside a %d slide deck", l.FromSlide+1, l.ToSlide+1, len(slides))
		}
		bySlide[l.FromSlide] = append(bySlide[l.FromSlide], l)
	}
	order := make([]int, 0, len(bySlide))
	for i := range bySlide {
		order = append(order, i)
	}
	sort.Ints(order)

	placed := 0
	for _, i := range order {
		n, err := p.linkSlide(slides, i, bySlide[i], mode)
		if err != nil {
			return placed, err
		}
		placed += n
	}
	return placed, nil
}

func (p *Package) linkSlide(slides []string, i int, links []Link, mode LinkMode) (int, error) {
	part := slides[i]
	doc, err := p.readXML(part)
	if err != nil {
		return 0, err
	}
	rels, err := p.readRels(part)
	if err != nil {
		return 0, err
	}
	ensureNamespace(doc.Root(), "r", nsRelationships)
	shapes := descendants(doc.Root(), "sp")

	ids := make(map[int]string)
	placed := 0
	for _, l := range links {
		sp := findShape(shapes, l)
		if sp == nil {
			continue
		}
		rid, ok := ids[l.ToSlide]
		if !ok {
			rid = slideRelationship(rels, part, slides[l.ToSlide])
			ids[l.ToSlide] = rid
		}
		prefix := drawingPrefix(sp)
		for _, run := range descendants(sp, "r") {
			linkRun(run, prefix, rid, l.Tooltip)
		}
		if mode == LinkOverlay {
			if nv := sp.SelectElement("nvSpPr"); nv != nil {
				if c := nv.SelectElement("cNvPr"); c != nil {
					removeChildren(c, "hlinkClick")
					c.InsertChildAt(0, hyperlink(prefix, rid, l.Tooltip))
				}
			}
		}
		placed++
	}
	if placed == 0 {
		return 0, nil
	}
	if err := p.writeXML(part, doc); err != nil {
		return 0, err
	}
	if err := p.writeXML(relsName(part), rels); err != nil {
		return 0, err
	}
	return placed, nil
}

// slideRelationship returns the id of the relationship from part to the
// target slide, adding one if needed.
func slideRelationship(rels *etree.Document, part, target string) string {
	for _, r := range relationships(rels) {
		if r.Type == relTypeSlide && !r.External && resolveTarget(part, r.Target) == target {
			return r.ID
		}
	}
	return addRelationship(rels, relTypeSlide, relativeTarget(part, target))
}

func findShape(shapes []*etree.Element, l Link) *etree.Element {
	want := strings.TrimSpace(l.Text)
	if l.Shape >= 0 && l.Shape < len(shapes) {
		if want == "" || strings.TrimSpace(shapeText(shapes[l.Shape])) == want {
			return shapes[l.Shape]
		}
	}
	if want == "" {
		return nil
	}
	for _, sp := range shapes {
		if strings.TrimSpace(shapeText(sp)) == want {
			return sp
		}
	}
	return nil
}

// shapeText joins the paragraphs of a shape with newlines.
func shapeText(sp *etree.Element) string {
	var paras []string
	for _, para := range descendants(sp, "p") {
		var b strings.Builder
		for _, t := range descendants(para, "t") {
			b.WriteString(t.Text())
		}
		paras = append(paras, b.String())
	}
	return strings.Join(paras, "\n")
}

// linkRun puts a hyperlink into a run's properties, which must precede the
// run text and keep the schema order of their own children.
func linkRun(run *etree.Element, prefix, rid, tooltip string) {
	if run.SelectElement("t") == nil {
		return
	}
	rPr := run.SelectElement("rPr")
	if rPr == nil {
		rPr = etree.NewElement(qualified(prefix, "rPr"))
		run.InsertChildAt(0, rPr)
	}
	removeChildren(rPr, "hlinkClick")
	link := hyperlink(prefix, rid, tooltip)
	for _, c := range rPr.ChildElements() {
		if c.Tag == "hlinkMouseOver" || c.Tag == "rtl" || c.Tag == "extLst" {
			rPr.InsertChildAt(c.Index(), link)
			return
		}
	}
	rPr.AddChild(link)
}

func hyperlink(prefix, rid, tooltip string) *etree.Element {
	el := etree.NewElement(qualified(prefix, "hlinkClick"))
	el.CreateAttr("r:id", rid)
	el.CreateAttr("action", actionSlideJump)
	if tooltip != "" {
		el.CreateAttr("tooltip", tooltip)
	}
	return el
}

func removeChildren(el *etree.Element, tag string) {
	for _, c := range el.SelectElements(tag) {
		el.RemoveChild(c)
	}
}

// drawingPrefix is the prefix the shape uses for DrawingML elements.
func drawingPrefix(sp *etree.Element) string {
	for _, tag := range []string{"bodyPr", "off", "p"} {
		if found := descendants(sp, tag); len(found) > 0 {
			return found[0].Space
		}
	}
	return "a"
}

func qualified(prefix, tag string) string {
	if prefix == "" {
		return tag
	}
	return prefix + ":" + tag
}
