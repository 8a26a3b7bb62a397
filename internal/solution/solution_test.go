package solution

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xamarin/mirepoix/internal/guid"
	"github.com/xamarin/mirepoix/internal/slnfile"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestConfigurationPlatform(t *testing.T) {
	c := NewConfigurationPlatform("  ", "Any CPU")
	assert.Equal(t, ConfigurationPlatform{Configuration: "Debug", Platform: "AnyCPU"}, c)
	assert.Equal(t, "Debug|Any CPU", c.SolutionString())

	p := ParseConfigurationPlatform("'Release|x64'")
	assert.Equal(t, "Release|x64", p.String())
	assert.Equal(t, "Release|x64", p.SolutionString())
	assert.True(t, p.Equal(ConfigurationPlatform{Configuration: "release", Platform: "X64"}))

	assert.Equal(t, "Debug|AnyCPU", ParseConfigurationPlatform("").String())
	assert.Equal(t, "Release|AnyCPU", ParseConfigurationPlatform("Release").String())

	assert.Equal(t, p, p.WithConfiguration(" "))
	assert.Equal(t, "Debug|x64", p.WithConfiguration("Debug").String())
	assert.Equal(t, p, p.WithPlatform(""))
	assert.Equal(t, "Release|AnyCPU", p.WithPlatform("Any CPU").String())
}

func TestAddConfigurationMapKeepsRowsUnique(t *testing.T) {
	root := newRoot()
	n, _, err := root.AddProject(uuid.New(), "A.csproj")
	require.NoError(t, err)

	debug := NewConfigurationPlatform("Debug", "")
	release := NewConfigurationPlatform("Release", "")
	n.AddConfigurationMap(NewConfigurationMap(debug, debug))
	n.AddConfigurationMap(ConfigurationMap{Solution: NewConfigurationPlatform("DEBUG", "anycpu"), Project: debug})
	n.AddConfigurationMap(NewConfigurationMap(debug, release))

	rows := n.Configurations()
	require.Len(t, rows, 2)
	assert.False(t, rows[0].BuildEnabled)
	assert.Equal(t, "Debug|AnyCPU = Release|AnyCPU", rows[1].String())
}

func TestBuilderFolderNesting(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"))

	lib, err := b.AddProject(filepath.Join(dir, "src", "Lib", "Lib.csproj"), `Libs\Core`, uuid.Nil)
	require.NoError(t, err)
	tests, err := b.AddProject(filepath.Join(dir, "test", "Lib.Tests", "Lib.Tests.fsproj"), "Libs/Tests/", uuid.Nil)
	require.NoError(t, err)
	app, err := b.AddProject(filepath.Join(dir, "App.vbproj"), "", uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Libs", "App"}, names(b.Root().Children()))
	libs := b.Root().Children()[0]
	assert.Equal(t, []string{"Core", "Tests"}, names(libs.Children()))
	assert.Equal(t, guid.V5(uuid.Nil, "Libs"), libs.GUID)
	assert.Equal(t, guid.V5(libs.GUID, "Core"), lib.Parent().GUID)
	assert.Equal(t, "Libs/Core", lib.FolderPath())
	assert.Equal(t, "Libs/Tests", tests.FolderPath())
	assert.Equal(t, slnfile.TypeFSharp, tests.TypeGUID)
	assert.Equal(t, slnfile.TypeVisualBasic, app.TypeGUID)
	assert.Equal(t, "Lib", lib.Name)
	assert.Equal(t, guid.V5(ProjectNamespace, "src/Lib/Lib.csproj"), lib.GUID)

	again, err := b.AddProject(filepath.Join(dir, "src", "Lib", "Lib.csproj"), "Elsewhere", uuid.Nil)
	require.NoError(t, err)
	assert.Same(t, lib, again)
	assert.Len(t, b.Root().Children(), 2)
}

func TestBuilderPlacementConflict(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"), WithPlacementPolicy(ConflictPolicyError))
	_, err := b.AddProject(filepath.Join(dir, "A", "A.csproj"), "One", uuid.Nil)
	require.NoError(t, err)

	_, err = b.AddProject(filepath.Join(dir, "A", "A.csproj"), "Two", uuid.Nil)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "SolutionFolder", conflict.Field)
	assert.Equal(t, []string{"One", "Two"}, conflict.Values)
}

func TestBuilderUnsupportedProjectType(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"))
	_, err := b.AddProject(filepath.Join(dir, "native", "Native.vcxproj"), "Native", uuid.Nil)

	var unsupported *UnsupportedProjectTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ".vcxproj", unsupported.Extension)
	assert.Empty(t, b.Root().Children())
}

func TestDerivedGUIDIgnoresSeparatorStyle(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"))

	slash, err := b.DeriveProjectGUID(dir + "/src/A/A.csproj")
	require.NoError(t, err)
	back, err := b.DeriveProjectGUID(dir + `\src\A\A.csproj`)
	require.NoError(t, err)
	assert.Equal(t, slash, back)
	assert.Equal(t, guid.V5(ProjectNamespace, "src/A/A.csproj"), slash)

	other := NewBuilder(filepath.Join(dir, "All.sln"))
	again, err := other.DeriveProjectGUID(filepath.Join(dir, "src", "A", "A.csproj"))
	require.NoError(t, err)
	assert.Equal(t, slash, again)
}

func TestRenderFreshSolution(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"))
	debug := NewConfigurationPlatform("Debug", "AnyCPU")
	release := NewConfigurationPlatform("Release", "x64")
	b.AddSolutionConfiguration(debug)
	b.AddSolutionConfiguration(release)
	b.AddSolutionConfiguration(NewConfigurationPlatform("debug", "Any CPU"))

	id := guid.MustParse("{11111111-2222-3333-4444-555555555555}")
	lib, err := b.AddProject(filepath.Join(dir, "src", "Lib", "Lib.csproj"), "Libs", id)
	require.NoError(t, err)
	lib.AddConfigurationMap(NewConfigurationMap(debug, debug))
	lib.AddConfigurationMap(ConfigurationMap{Solution: release, Project: NewConfigurationPlatform("Release", "AnyCPU")})

	folder := guid.Format(guid.V5(uuid.Nil, "Libs"))
	want := "\r\n" +
		"Microsoft Visual Studio Solution File, Format Version 12.00\r\n" +
		"# Visual Studio 15\r\n" +
		"VisualStudioVersion = 15.0.26124.0\r\n" +
		"MinimumVisualStudioVersion = 15.0.26124.0\r\n" +
		`Project("{2150E333-8FDC-42A3-9474-1A3956D46DE8}") = "Libs", "Libs", "` + folder + `"` + "\r\n" +
		"EndProject\r\n" +
		`Project("{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}") = "Lib", "src\Lib\Lib.csproj", "{11111111-2222-3333-4444-555555555555}"` + "\r\n" +
		"EndProject\r\n" +
		"Global\r\n" +
		"\tGlobalSection(SolutionConfigurationPlatforms) = preSolution\r\n" +
		"\t\tDebug|Any CPU = Debug|Any CPU\r\n" +
		"\t\tRelease|x64 = Release|x64\r\n" +
		"\tEndGlobalSection\r\n" +
		"\tGlobalSection(SolutionProperties) = preSolution\r\n" +
		"\t\tHideSolutionNode = FALSE\r\n" +
		"\tEndGlobalSection\r\n" +
		"\tGlobalSection(NestedProjects) = preSolution\r\n" +
		"\t\t{11111111-2222-3333-4444-555555555555} = " + folder + "\r\n" +
		"\tEndGlobalSection\r\n" +
		"\tGlobalSection(ProjectConfigurationPlatforms) = postSolution\r\n" +
		"\t\t{11111111-2222-3333-4444-555555555555}.Debug|Any CPU.ActiveCfg = Debug|Any CPU\r\n" +
		"\t\t{11111111-2222-3333-4444-555555555555}.Debug|Any CPU.Build.0 = Debug|Any CPU\r\n" +
		"\t\t{11111111-2222-3333-4444-555555555555}.Release|x64.ActiveCfg = Release|Any CPU\r\n" +
		"\tEndGlobalSection\r\n" +
		"EndGlobal\r\n"

	var buf bytes.Buffer
	require.NoError(t, b.Render(&buf))
	assert.Equal(t, want, buf.String())
}

func TestWriteOmitsEmptySections(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(filepath.Join(dir, "All.sln"))
	_, err := b.AddProject(filepath.Join(dir, "A.csproj"), "", uuid.Nil)
	require.NoError(t, err)

	doc := b.Document(nil)
	require.Len(t, doc.Global, 1)
	assert.Equal(t, slnfile.SectionSolutionProperties, doc.Global[0].Name)
}

func TestWriteRoundTripIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "All.sln")
	b := NewBuilder(path)
	debug := NewConfigurationPlatform("", "")
	b.AddSolutionConfiguration(debug)
	n, err := b.AddProject(filepath.Join(dir, "src", "A", "A.csproj"), "Nested/Deeper", uuid.Nil)
	require.NoError(t, err)
	n.AddConfigurationMap(NewConfigurationMap(debug, debug))

	require.NoError(t, b.Write(""))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("\xef\xbb\xbf")))

	require.NoError(t, b.Write(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	var buf bytes.Buffer
	require.NoError(t, b.Render(&buf))
	assert.Equal(t, string(first[3:]), buf.String())
}

func TestWriteKeepsLineEnding(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "All.sln", "\n"+
		"Microsoft Visual Studio Solution File, Format Version 12.00\n"+
		"Global\n"+
		"EndGlobal\n")

	b := NewBuilder(path)
	debug := NewConfigurationPlatform("", "")
	b.AddSolutionConfiguration(debug)
	n, err := b.AddProject(filepath.Join(dir, "A", "A.csproj"), "", uuid.Nil)
	require.NoError(t, err)
	n.AddConfigurationMap(NewConfigurationMap(debug, debug))
	require.NoError(t, b.Write(""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\r")
	assert.Contains(t, string(data), "EndProject\nGlobal\n")
}

func TestWriteUpdatesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "All.sln", "\r\n"+
		"Microsoft Visual Studio Solution File, Format Version 12.00\r\n"+
		"# Visual Studio Version 17\r\n"+
		"VisualStudioVersion = 17.0.31903.59\r\n"+
		"MinimumVisualStudioVersion = 10.0.40219.1\r\n"+
		`Project("{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}") = "Old", "Old\Old.csproj", "{99999999-0000-0000-0000-000000000000}"`+"\r\n"+
		"EndProject\r\n"+
		"Global\r\n"+
		"\tGlobalSection(SolutionConfigurationPlatforms) = preSolution\r\n"+
		"\t\tDebug|Any CPU = Debug|Any CPU\r\n"+
		"\tEndGlobalSection\r\n"+
		"\tGlobalSection(ProjectConfigurationPlatforms) = postSolution\r\n"+
		"\t\t{99999999-0000-0000-0000-000000000000}.Debug|Any CPU.ActiveCfg = Debug|Any CPU\r\n"+
		"\tEndGlobalSection\r\n"+
		"\tGlobalSection(ExtensibilityGlobals) = postSolution\r\n"+
		"\t\tSolutionGuid = {EEEEEEEE-0000-0000-0000-000000000005}\r\n"+
		"\tEndGlobalSection\r\n"+
		"EndGlobal\r\n")

	b := NewBuilder(path)
	release := NewConfigurationPlatform("Release", "")
	b.AddSolutionConfiguration(release)
	n, err := b.AddProject(filepath.Join(dir, "New", "New.csproj"), "Group", uuid.Nil)
	require.NoError(t, err)
	n.AddConfigurationMap(NewConfigurationMap(release, release))
	require.NoError(t, b.Write(""))

	doc, err := slnfile.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "VisualStudioVersion = 17.0.31903.59", doc.Header[3])
	require.Len(t, doc.Projects, 2)
	assert.Equal(t, "Group", doc.Projects[0].Name)
	assert.Equal(t, `New\New.csproj`, doc.Projects[1].Path)

	var sections []string
	for _, s := range doc.Global {
		sections = append(sections, s.Name)
	}
	assert.Equal(t, []string{
		slnfile.SectionSolutionConfigurations,
		slnfile.SectionNestedProjects,
		slnfile.SectionProjectConfigurations,
		"ExtensibilityGlobals",
	}, sections)
	assert.Equal(t, "Release|Any CPU", doc.Section(slnfile.SectionSolutionConfigurations).Entries[0].Key)
	assert.Equal(t, "{EEEEEEEE-0000-0000-0000-000000000005}", doc.Section("ExtensibilityGlobals").Entries[0].Value)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Old.csproj")
	assert.False(t, strings.Contains(string(data), "\n\n"))
}
