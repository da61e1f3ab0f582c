// Package pptxpkg edits .pptx files at the OOXML part level: reading slide
// order and text, appending the slides of one deck to another, and adding
// slide-jump hyperlinks to shapes.
package pptxpkg

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

var ErrNotPPTX = errors.New("not a pptx package")

const (
	contentTypesPart = "[Content_Types].xml"
	presentationPart = "ppt/presentation.xml"

	nsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPackageRels   = "http://schemas.openxmlformats.org/package/2006/relationships"

	relTypeSlide       = nsRelationships + "/slide"
	relTypeSlideLayout = nsRelationships + "/slideLayout"
	relTypeNotesSlide  = nsRelationships + "/notesSlide"

	contentTypeSlide = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
)

// Package is an in-memory .pptx file. Parts keep their original order so a
// package written back out differs from its source only where it was edited.
type Package struct {
	names []string
	parts map[string][]byte
}

// Open reads a package from memory.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPPTX, err)
	}
	p := &Package{parts: make(map[string][]byte, len(zr.File))}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open part %s: %w", zf.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read part %s: %w", zf.Name, err)
		}
		p.SetPart(zf.Name, b)
	}
	if _, ok := p.parts[presentationPart]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotPPTX, presentationPart)
	}
	if _, ok := p.parts[contentTypesPart]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotPPTX, contentTypesPart)
	}
	return p, nil
}

// OpenFile reads the package at path.
func OpenFile(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Open(data)
}

// Part returns the raw bytes of a part.
func (p *Package) Part(name string) ([]byte, bool) {
	b, ok := p.parts[name]
	return b, ok
}

// SetPart adds or replaces a part.
func (p *Package) SetPart(name string, data []byte) {
	name = strings.TrimPrefix(name, "/")
	if _, ok := p.parts[name]; !ok {
		p.names = append(p.names, name)
	}
	p.parts[name] = data
}

// PartNames lists every part in package order.
func (p *Package) PartNames() []string {
	return append([]string(nil), p.names...)
}

// Bytes serializes the package. The content types part is written first.
func (p *Package) Bytes() ([]byte, error) {
	names := append([]string(nil), p.names...)
	sort.SliceStable(names, func(i, j int) bool {
		return names[i] == contentTypesPart && names[j] != contentTypesPart
	})
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to write part %s: %w", name, err)
		}
		if _, err := w.Write(p.parts[name]); err != nil {
			return nil, fmt.Errorf("failed to write part %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the package to path.
func (p *Package) WriteFile(path string) error {
	data, err := p.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (p *Package) readXML(name string) (*etree.Document, error) {
	b, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("missing part %s", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("part %s has no root element", name)
	}
	return doc, nil
}

func (p *Package) writeXML(name string, doc *etree.Document) error {
	b, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	p.SetPart(name, b)
	return nil
}

// relsName returns the relationships part of a part:
// ppt/slides/slide1.xml -> ppt/slides/_rels/slide1.xml.rels.
func relsName(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// readRels returns the relationships of part, creating an empty document
// when the part has none.
func (p *Package) readRels(part string) (*etree.Document, error) {
	name := relsName(part)
	if _, ok := p.parts[name]; ok {
		return p.readXML(name)
	}
	return newRels(), nil
}

func newRels() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	root := doc.CreateElement("Relationships")
	root.CreateAttr("xmlns", nsPackageRels)
	return doc
}

type relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
	el       *etree.Element
}

func relationships(doc *etree.Document) []relationship {
	var rels []relationship
	for _, el := range doc.Root().SelectElements("Relationship") {
		rels = append(rels, relationship{
			ID:       attrValue(el, "", "Id"),
			Type:     attrValue(el, "", "Type"),
			Target:   attrValue(el, "", "Target"),
			External: strings.EqualFold(attrValue(el, "", "TargetMode"), "External"),
			el:       el,
		})
	}
	return rels
}

// addRelationship appends a relationship with the next free rId.
func addRelationship(doc *etree.Document, typ, target string) string {
	root := doc.Root()
	highest := 0
	for _, r := range relationships(doc) {
		var n int
		if _, err := fmt.Sscanf(r.ID, "rId%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	id := fmt.Sprintf("rId%d", highest+1)
	el := root.CreateElement("Relationship")
	el.CreateAttr("Id", id)
	el.CreateAttr("Type", typ)
	el.CreateAttr("Target", target)
	return id
}

// resolveTarget turns a relationship target into a part name.
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(source), target))
}

// relativeTarget is the inverse of resolveTarget.
func relativeTarget(source, part string) string {
	from := strings.Split(path.Dir(source), "/")
	to := strings.Split(part, "/")
	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}
	var b strings.Builder
	for i := common; i < len(from); i++ {
		if from[i] == "." || from[i] == "" {
			continue
		}
		b.WriteString("../")
	}
	b.WriteString(strings.Join(to[common:], "/"))
	return b.String()
}

// attrValue reads an attribute by exact prefix; etree's SelectAttrValue
// treats an empty prefix as a wildcard, which confuses id with r:id.
func attrValue(el *etree.Element, space, key string) string {
	for _, a := range el.Attr {
		if a.Space == space && a.Key == key {
			return a.Value
		}
	}
	return ""
}

// descendants returns every element below el with the given local name, in
// document order.
func descendants(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
		out = append(out, descendants(c, tag)...)
	}
	return out
}
