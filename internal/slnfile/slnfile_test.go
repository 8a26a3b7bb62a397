package slnfile

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "\r\n" +
	"Microsoft Visual Studio Solution File, Format Version 12.00\r\n" +
	"# Visual Studio Version 17\r\n" +
	"VisualStudioVersion = 17.0.31903.59\r\n" +
	"MinimumVisualStudioVersion = 10.0.40219.1\r\n" +
	"Project(\"{2150E333-8FDC-42A3-9474-1A3956D46DE8}\") = \"libs\", \"libs\", \"{AAAAAAAA-0000-0000-0000-000000000001}\"\r\n" +
	"EndProject\r\n" +
	"Project(\"{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}\") = \"Lib\", \"src\\Lib\\Lib.csproj\", \"{BBBBBBBB-0000-0000-0000-000000000002}\"\r\n" +
	"\tProjectSection(ProjectDependencies) = postProject\r\n" +
	"\t\t{CCCCCCCC-0000-0000-0000-000000000003} = {CCCCCCCC-0000-0000-0000-000000000003}\r\n" +
	"\tEndProjectSection\r\n" +
	"EndProject\r\n" +
	"Project(\"{D954291E-2A0B-460D-934E-DC6B0785DB48}\") = \"Shared\", \"src\\Shared\\Shared.shproj\", \"{DDDDDDDD-0000-0000-0000-000000000004}\"\r\n" +
	"EndProject\r\n" +
	"Global\r\n" +
	"\tGlobalSection(SolutionConfigurationPlatforms) = preSolution\r\n" +
	"\t\tDebug|Any CPU = Debug|Any CPU\r\n" +
	"\tEndGlobalSection\r\n" +
	"\tGlobalSection(ExtensibilityGlobals) = postSolution\r\n" +
	"\t\tSolutionGuid = {EEEEEEEE-0000-0000-0000-000000000005}\r\n" +
	"\tEndGlobalSection\r\n" +
	"EndGlobal\r\n"

func TestParseRenderRoundTrip(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, doc.Header, 5)
	assert.Equal(t, "", doc.Header[0])
	require.Len(t, doc.Projects, 3)
	assert.True(t, doc.Projects[0].IsFolder())
	assert.Equal(t, `src\Lib\Lib.csproj`, doc.Projects[1].Path)
	assert.Len(t, doc.Projects[1].Body, 3)
	require.Len(t, doc.Global, 2)
	assert.Equal(t, PostSolution, doc.Global[1].Position)
	assert.Equal(t, Entry{Key: "SolutionGuid", Value: "{EEEEEEEE-0000-0000-0000-000000000005}"}, doc.Global[1].Entries[0])

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	assert.Equal(t, sample, buf.String())
}

func TestParseKeepsLF(t *testing.T) {
	lf := strings.ReplaceAll(sample, "\r\n", "\n")
	doc, err := Parse(strings.NewReader("\ufeff" + lf))
	require.NoError(t, err)
	assert.Equal(t, "\n", doc.LineEnding)
	require.Len(t, doc.Projects, 3)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	assert.Equal(t, lf, buf.String())
}

func TestRenderDefaultsToCRLF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, &Document{Header: []string{"header"}}))
	assert.Equal(t, "header\r\nGlobal\r\nEndGlobal\r\n", buf.String())

	assert.Equal(t, CRLF, New().LineEnding)
}

func TestLinesBeforeGlobalStayInPlace(t *testing.T) {
	input := strings.Replace(sample, "EndProject\r\nGlobal\r\n", "EndProject\r\n\r\n# generated\r\nGlobal\r\n", 1)
	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Len(t, doc.Header, 5)
	assert.Equal(t, []string{"", "# generated"}, doc.BeforeGlobal)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	assert.Equal(t, input, buf.String())
}

func TestParseMalformed(t *testing.T) {
	for name, input := range map[string]string{
		"unterminated project": "Project(\"{A}\") = \"a\", \"a.csproj\", \"{B}\"\r\n",
		"bad declaration":      "Project(\"{A}\") = \"a\"\r\nEndProject\r\n",
		"unterminated global":  "Global\r\n",
		"unterminated section": "Global\r\n\tGlobalSection(X) = preSolution\r\n",
		"garbage in global":    "Global\r\n\tnonsense\r\nEndGlobal\r\n",
	} {
		_, err := Parse(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestProjectRefs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "All.sln")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	refs, err := ReadProjects(path)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.False(t, refs[0].Buildable)
	assert.True(t, refs[1].Buildable)
	assert.Equal(t, `src\Lib\Lib.csproj`, refs[1].RelativePath)
	assert.False(t, refs[2].Buildable)

	_, err = ReadProjects(filepath.Join(dir, "missing.sln"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSetSection(t *testing.T) {
	doc := New()
	doc.SetSection(Section{Name: SectionNestedProjects, Position: PreSolution})
	assert.Empty(t, doc.Global)

	doc.SetSection(Section{Name: "A", Position: PreSolution, Entries: []Entry{{Key: "k", Value: "v"}}})
	doc.SetSection(Section{Name: "B", Position: PreSolution, Entries: []Entry{{Key: "k", Value: "v"}}})
	doc.SetSection(Section{Name: "a", Position: PreSolution, Entries: []Entry{{Key: "k", Value: "w"}}})
	require.Len(t, doc.Global, 2)
	assert.Equal(t, "w", doc.Section("A").Entries[0].Value)

	doc.SetSection(Section{Name: "A"})
	require.Len(t, doc.Global, 1)
	assert.Nil(t, doc.Section("A"))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "App.sln")
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.NoError(t, WriteFile(path, doc))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, utf8BOM))
	assert.Equal(t, sample, string(data[len(utf8BOM):]))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestDetectLineEnding(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"no newline":  "",
		"a\nb":        "\n",
		"a\r\nb":      "\r\n",
		"a\rb":        "\r",
		"a\r":         "\r",
		"\r\n\nmixed": "\r\n",
	}
	for input, want := range tests {
		assert.Equal(t, want, DetectLineEnding([]byte(input)), "%q", input)
	}
}
