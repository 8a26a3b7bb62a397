package msbuild

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// element is a namespace-agnostic XML element. Project files are small and
// evaluated top to bottom several times, so the whole tree is kept.
type element struct {
	Name     string
	Attrs    []xml.Attr
	Children []*element
	Text     string
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) attrValue(name string) string {
	v, _ := e.attr(name)
	return v
}

func (e *element) is(name string) bool {
	return strings.EqualFold(e.Name, name)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readXMLFile(path string) (*element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	root, err := parseXML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProject, path, err)
	}
	return root, nil
}

func parseXML(data []byte) (*element, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "utf-8", "utf8", "us-ascii", "ascii":
			return input, nil
		}
		return nil, fmt.Errorf("unsupported encoding %q", charset)
	}

	var (
		stack []*element
		root  *element
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{Name: t.Name.Local, Attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	return root, nil
}
