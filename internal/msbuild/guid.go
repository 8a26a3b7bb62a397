package msbuild

import "strings"

// ReadExplicitProjectGUID returns the ProjectGuid declared in the first
// unconditional top-level PropertyGroup of the project at path, without
// evaluating it. Projects that cannot be evaluated (for example because
// their SDK is unavailable) still carry their identity this way. Returns ""
// when no such element exists.
func ReadExplicitProjectGUID(path string) (string, error) {
	root, err := readXMLFile(path)
	if err != nil {
		return "", err
	}
	for _, el := range root.Children {
		if len(el.Attrs) != 0 || !el.is("PropertyGroup") {
			continue
		}
		for _, prop := range el.Children {
			if prop.is("ProjectGuid") {
				return strings.TrimSpace(prop.Text), nil
			}
		}
		return "", nil
	}
	return "", nil
}
