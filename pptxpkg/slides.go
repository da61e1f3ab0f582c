package pptxpkg

import (
	"fmt"
	"strconv"
	"strings"
)

// Slides returns the slide part names in presentation order.
func (p *Package) Slides() ([]string, error) {
	pres, err := p.readXML(presentationPart)
	if err != nil {
		return nil, err
	}
	rels, err := p.readRels(presentationPart)
	if err != nil {
		return nil, err
	}
	targets := make(map[string]string)
	for _, r := range relationships(rels) {
		if r.Type == relTypeSlide {
			targets[r.ID] = resolveTarget(presentationPart, r.Target)
		}
	}
	lst := pres.Root().SelectElement("sldIdLst")
	if lst == nil {
		return nil, nil
	}
	var slides []string
	for _, id := range lst.SelectElements("sldId") {
		rid := attrValue(id, "r", "id")
		part, ok := targets[rid]
		if !ok {
			return nil, fmt.Errorf("slide id %s has no relationship %q", attrValue(id, "", "id"), rid)
		}
		slides = append(slides, part)
	}
	return slides, nil
}

// SlideSize returns the slide width and height in EMU.
func (p *Package) SlideSize() (cx, cy int64, err error) {
	pres, err := p.readXML(presentationPart)
	if err != nil {
		return 0, 0, err
	}
	sz := pres.Root().SelectElement("sldSz")
	if sz == nil {
		return 0, 0, fmt.Errorf("%s has no slide size", presentationPart)
	}
	if cx, err = strconv.ParseInt(attrValue(sz, "", "cx"), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid slide width: %w", err)
	}
	if cy, err = strconv.ParseInt(attrValue(sz, "", "cy"), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid slide height: %w", err)
	}
	return cx, cy, nil
}

// SlideTexts returns the text of every paragraph on slide i (0-based).
func (p *Package) SlideTexts(i int) ([]string, error) {
	slides, err := p.Slides()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(slides) {
		return nil, fmt.Errorf("slide %d out of range (deck has %d)", i+1, len(slides))
	}
	doc, err := p.readXML(slides[i])
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, para := range descendants(doc.Root(), "p") {
		var b strings.Builder
		for _, t := range descendants(para, "t") {
			b.WriteString(t.Text())
		}
		if s := b.String(); s != "" {
			texts = append(texts, s)
		}
	}
	return texts, nil
}

// ShapeTexts returns the text of each shape on slide i in drawing order.
func (p *Package) ShapeTexts(i int) ([]string, error) {
	slides, err := p.Slides()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(slides) {
		return nil, fmt.Errorf("slide %d out of range (deck has %d)", i+1, len(slides))
	}
	doc, err := p.readXML(slides[i])
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, sp := range descendants(doc.Root(), "sp") {
		texts = append(texts, shapeText(sp))
	}
	return texts, nil
}
