package pptxpkg

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Append copies every slide of other to the end of p and returns the index
// of the first copied slide. Copied slides use p's slide layout (the layout
// of p's first slide when it has one); images and other parts they reference
// are copied alongside. Speaker notes are not carried over.
func (p *Package) Append(other *Package) (int, error) {
	existing, err := p.Slides()
	if err != nil {
		return 0, err
	}
	sources, err := other.Slides()
	if err != nil {
		return 0, err
	}
	start := len(existing)
	if len(sources) == 0 {
		return start, nil
	}
	layout, err := p.defaultLayout(existing)
	if err != nil {
		return 0, err
	}

	ct, err := p.readXML(contentTypesPart)
	if err != nil {
		return 0, err
	}
	otherCT, err := other.readXML(contentTypesPart)
	if err != nil {
		return 0, err
	}
	pres, err := p.readXML(presentationPart)
	if err != nil {
		return 0, err
	}
	presRels, err := p.readRels(presentationPart)
	if err != nil {
		return 0, err
	}

	copied := make(map[string]string)
	targets := make([]string, len(sources))
	for i, src := range sources {
		targets[i] = p.nextPartName("ppt/slides/slide", ".xml")
		p.SetPart(targets[i], nil)
		copied[src] = targets[i]
	}

	for i, src := range sources {
		dst := targets[i]
		p.SetPart(dst, other.parts[src])
		setOverride(ct, "/"+dst, contentTypeSlide)

		srcRels, err := other.readRels(src)
		if err != nil {
			return 0, err
		}
		dstRels := newRels()
		for _, r := range relationships(srcRels) {
			target := r.Target
			switch {
			case r.External:
			case r.Type == relTypeSlideLayout:
				target = relativeTarget(dst, layout)
			case r.Type == relTypeNotesSlide:
				continue
			case r.Type == relTypeSlide:
				jump, ok := copied[resolveTarget(src, r.Target)]
				if !ok {
					continue
				}
				target = relativeTarget(dst, jump)
			default:
				srcPart := resolveTarget(src, r.Target)
				dstPart, ok := copied[srcPart]
				if !ok {
					data, found := other.parts[srcPart]
					if !found {
						return 0, fmt.Errorf("slide %s references missing part %s", src, srcPart)
					}
					dstPart = p.uniquePartName(srcPart)
					p.SetPart(dstPart, data)
					copyContentType(ct, otherCT, srcPart, dstPart)
					copied[srcPart] = dstPart
				}
				target = relativeTarget(dst, dstPart)
			}
			el := dstRels.Root().CreateElement("Relationship")
			el.CreateAttr("Id", r.ID)
			el.CreateAttr("Type", r.Type)
			el.CreateAttr("Target", target)
			if r.External {
				el.CreateAttr("TargetMode", "External")
			}
		}
		if err := p.writeXML(relsName(dst), dstRels); err != nil {
			return 0, err
		}

		rid := addRelationship(presRels, relTypeSlide, relativeTarget(presentationPart, dst))
		appendSlideID(pres.Root(), rid)
	}

	if err := p.writeXML(contentTypesPart, ct); err != nil {
		return 0, err
	}
	if err := p.writeXML(presentationPart, pres); err != nil {
		return 0, err
	}
	if err := p.writeXML(relsName(presentationPart), presRels); err != nil {
		return 0, err
	}
	return start, nil
}

// defaultLayout picks the layout appended slides point at.
func (p *Package) defaultLayout(slides []string) (string, error) {
	if len(slides) > 0 {
		rels, err := p.readRels(slides[0])
		if err != nil {
			return "", err
		}
		for _, r := range relationships(rels) {
			if r.Type == relTypeSlideLayout {
				return resolveTarget(slides[0], r.Target), nil
			}
		}
	}
	var layouts []string
	for _, name := range p.names {
		if strings.HasPrefix(name, "ppt/slideLayouts/") && strings.HasSuffix(name, ".xml") {
			layouts = append(layouts, name)
		}
	}
	if len(layouts) == 0 {
		return "", fmt.Errorf("%w: no slide layouts", ErrNotPPTX)
	}
	sort.Slice(layouts, func(i, j int) bool { return partNumber(layouts[i]) < partNumber(layouts[j]) })
	return layouts[0], nil
}

// nextPartName returns prefix+N+ext with N one past the highest in use.
func (p *Package) nextPartName(prefix, ext string) string {
	highest := 0
	for name := range p.parts {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)); err == nil && n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1) + ext
}

// uniquePartName returns a free name for part in the same folder, keeping
// its naming pattern: ppt/media/image1.png -> ppt/media/image7.png.
func (p *Package) uniquePartName(part string) string {
	if _, taken := p.parts[part]; !taken {
		return part
	}
	ext := path.Ext(part)
	base := strings.TrimRight(strings.TrimSuffix(part, ext), "0123456789")
	return p.nextPartName(base, ext)
}

func partNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	digits := strings.TrimLeft(base, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func setOverride(ct *etree.Document, partName, contentType string) {
	for _, o := range ct.Root().SelectElements("Override") {
		if attrValue(o, "", "PartName") == partName {
			o.CreateAttr("ContentType", contentType)
			return
		}
	}
	o := ct.Root().CreateElement("Override")
	o.CreateAttr("PartName", partName)
	o.CreateAttr("ContentType", contentType)
}

// copyContentType registers dstPart with the content type srcPart has in
// the source package, as an override or through its extension default.
func copyContentType(ct, otherCT *etree.Document, srcPart, dstPart string) {
	for _, o := range otherCT.Root().SelectElements("Override") {
		if attrValue(o, "", "PartName") == "/"+srcPart {
			setOverride(ct, "/"+dstPart, attrValue(o, "", "ContentType"))
			return
		}
	}
	ext := strings.TrimPrefix(path.Ext(dstPart), ".")
	for _, d := range ct.Root().SelectElements("Default") {
		if strings.EqualFold(attrValue(d, "", "Extension"), ext) {
			return
		}
	}
	for _, d := range otherCT.Root().SelectElements("Default") {
		if strings.EqualFold(attrValue(d, "", "Extension"), ext) {
			nd := ct.Root().CreateElement("Default")
			nd.CreateAttr("Extension", attrValue(d, "", "Extension"))
			nd.CreateAttr("ContentType", attrValue(d, "", "ContentType"))
			return
		}
	}
}

// appendSlideID adds a slide to the presentation's slide list, creating the
// list before p:sldSz when the deck has no slides yet.
func appendSlideID(root *etree.Element, rid string) {
	prefix := root.Space
	qualify := func(tag string) string {
		if prefix == "" {
			return tag
		}
		return prefix + ":" + tag
	}
	lst := root.SelectElement("sldIdLst")
	if lst == nil {
		lst = etree.NewElement(qualify("sldIdLst"))
		if sz := root.SelectElement("sldSz"); sz != nil {
			root.InsertChildAt(sz.Index(), lst)
		} else {
			root.AddChild(lst)
		}
	}
	next := 256
	for _, id := range lst.SelectElements("sldId") {
		if n, err := strconv.Atoi(attrValue(id, "", "id")); err == nil && n >= next {
			next = n + 1
		}
	}
	ensureNamespace(root, "r", nsRelationships)
	el := lst.CreateElement(qualify("sldId"))
	el.CreateAttr("id", strconv.Itoa(next))
	el.CreateAttr("r:id", rid)
}

func ensureNamespace(root *etree.Element, prefix, uri string) {
	if attrValue(root, "xmlns", prefix) == "" {
		root.CreateAttr("xmlns:"+prefix, uri)
	}
}
