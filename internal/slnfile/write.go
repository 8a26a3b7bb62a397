package slnfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CRLF is the line terminator of new solutions.
const CRLF = "\r\n"

// Render writes d to w with the document's line ending (CRLF when unset) and
// no byte order mark.
func Render(w io.Writer, d *Document) error {
	eol := d.LineEnding
	if eol == "" {
		eol = CRLF
	}
	bw := bufio.NewWriter(w)
	line := func(s string) {
		bw.WriteString(s)
		bw.WriteString(eol)
	}

	for _, h := range d.Header {
		line(h)
	}
	for _, p := range d.Projects {
		line(`Project("` + p.TypeGUID + `") = "` + p.Name + `", "` + p.Path + `", "` + p.GUID + `"`)
		for _, b := range p.Body {
			line(b)
		}
		line("EndProject")
	}
	for _, l := range d.BeforeGlobal {
		line(l)
	}
	line("Global")
	for _, s := range d.Global {
		line(fmt.Sprintf("\tGlobalSection(%s) = %s", s.Name, s.Position))
		for _, e := range s.Entries {
			if e.Bare {
				line("\t\t" + e.Key)
				continue
			}
			line("\t\t" + e.Key + " = " + e.Value)
		}
		line("\tEndGlobalSection")
	}
	line("EndGlobal")
	for _, t := range d.Trailer {
		line(t)
	}
	return bw.Flush()
}

// WriteFile writes d to path as UTF-8 with a byte order mark. The content
// goes to a temporary file in the same directory which is then renamed over
// path, so readers never observe a partial solution.
func WriteFile(path string, d *Document) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(utf8BOM); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = Render(tmp, d); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
