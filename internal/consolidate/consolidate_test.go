package consolidate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xamarin/mirepoix/internal/depgraph"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeClosure writes Main, which references A (marked for consolidation)
// and B. A references B and B references C.
func writeClosure(t *testing.T, dir string) string {
	t.Helper()
	writeFile(t, dir, "A/A.csproj", `<Project>
  <PropertyGroup>
    <RootNamespace>Acme.A</RootNamespace>
  </PropertyGroup>
  <ItemGroup>
    <Compile Include="Foo.cs" />
    <Compile Include="Shared\Common.cs" />
    <Compile Include="Generated\Skip.g.cs" />
    <EmbeddedResource Include="Resources\Strings.resx">
      <LastGenOutput>Strings.Designer.cs</LastGenOutput>
    </EmbeddedResource>
    <EmbeddedResource Include="logo.png" LogicalResource="Logo" />
    <ProjectReference Include="..\B\B.csproj" />
    <Reference Include="System.Xml" />
    <PackageReference Include="Newtonsoft.Json" Version="12.0.1" />
  </ItemGroup>
</Project>`)
	writeFile(t, dir, "B/B.csproj", `<Project>
  <ItemGroup>
    <Compile Include="Bar.cs" />
    <Compile Include="../A/Foo.cs" />
    <ProjectReference Include="..\C\C.csproj" />
    <PackageReference Include="newtonsoft.json" Version="13.0.1" />
    <PackageReference Include="Ranged" Version="[1.0,2.0)" />
  </ItemGroup>
</Project>`)
	writeFile(t, dir, "C/C.csproj", `<Project>
  <ItemGroup>
    <Compile Include="C.cs" />
    <PackageReference Include="Newtonsoft.Json">
      <Version>11.0.2</Version>
    </PackageReference>
    <PackageReference Include="Ranged" Version="1.5.0" />
  </ItemGroup>
</Project>`)
	return writeFile(t, dir, "Main/Main.csproj", `<Project>
  <ItemGroup>
    <ProjectReference Include="..\A\A.csproj" Consolidate="True" />
    <ProjectReference Include="..\B\B.csproj" />
  </ItemGroup>
</Project>`)
}

func includes(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Include)
	}
	return out
}

func TestPrepareWholeClosure(t *testing.T) {
	dir := t.TempDir()
	main := writeClosure(t, dir)
	full := func(p string) string { return pathutil.ResolveFull(dir, p) }

	res, err := Prepare(context.Background(), main, Options{
		RemoveRules: []RemoveRule{{ItemType: "compile", Pattern: `\.g\.cs$`}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{full("C/C.csproj"), full("B/B.csproj"), full("A/A.csproj")}, res.Projects)
	assert.Equal(t, []string{
		full("C/C.cs"),
		full("B/Bar.cs"),
		full("A/Foo.cs"),
		full("A/Shared/Common.cs"),
	}, includes(res.Compile))
	assert.Equal(t, full("B/B.csproj"), res.Compile[2].Project)
	assert.Empty(t, res.ProjectReference)
	assert.Equal(t, []string{"System.Xml"}, includes(res.Reference))

	require.Len(t, res.EmbeddedResource, 2)
	resx := res.EmbeddedResource[0]
	assert.Equal(t, full("A/Resources/Strings.resx"), resx.Include)
	assert.Equal(t, "Acme.A.Resources.Strings.resx", resx.Metadata["LogicalResource"])
	assert.Equal(t, "Acme.A.Resources.Strings", resx.Metadata["ManifestResourceName"])
	assert.Equal(t, full("A/Strings.Designer.cs"), resx.Metadata["LastGenOutput"])
	logo := res.EmbeddedResource[1]
	assert.Equal(t, "Logo", logo.Metadata["LogicalResource"])
	assert.NotContains(t, logo.Metadata, "ManifestResourceName")

	require.Len(t, res.PackageReference, 2)
	json := res.PackageReference[0]
	assert.Equal(t, "Newtonsoft.Json", json.Include)
	assert.Equal(t, "13.0.1", json.Metadata["Version"])
	assert.Equal(t, full("B/B.csproj"), json.Project)
	ranged := res.PackageReference[1]
	assert.Equal(t, "1.5.0", ranged.Metadata["Version"])
	assert.Equal(t, full("C/C.csproj"), ranged.Project)
}

func TestPrepareConditionMetadata(t *testing.T) {
	dir := t.TempDir()
	main := writeClosure(t, dir)
	full := func(p string) string { return pathutil.ResolveFull(dir, p) }

	res, err := Prepare(context.Background(), main, Options{ConditionMetadata: "Consolidate"})
	require.NoError(t, err)

	assert.Equal(t, []string{full("A/A.csproj")}, res.Projects)
	assert.Equal(t, []string{
		full("A/Foo.cs"),
		full("A/Shared/Common.cs"),
		full("A/Generated/Skip.g.cs"),
	}, includes(res.Compile))
	assert.Equal(t, []string{full("B/B.csproj")}, includes(res.ProjectReference))
	assert.Equal(t, []string{"Newtonsoft.Json"}, includes(res.PackageReference))
	assert.Equal(t, "12.0.1", res.PackageReference[0].Metadata["Version"])
}

func TestPrepareLoadFailures(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "Main/Main.csproj", `<Project>
  <ItemGroup>
    <ProjectReference Include="..\Gone\Gone.csproj" />
  </ItemGroup>
</Project>`)

	_, err := Prepare(context.Background(), main, Options{})
	assert.ErrorIs(t, err, ErrLoadFailures)
	var missing *depgraph.MissingReferenceError
	assert.ErrorAs(t, err, &missing)

	_, err = Prepare(context.Background(), filepath.Join(dir, "nope.csproj"), Options{})
	assert.ErrorIs(t, err, depgraph.ErrNotFound)
}

func TestPrepareInvalidRemoveRule(t *testing.T) {
	dir := t.TempDir()
	main := writeClosure(t, dir)

	_, err := Prepare(context.Background(), main, Options{RemoveRules: []RemoveRule{{ItemType: "Compile", Pattern: "("}}})
	assert.ErrorContains(t, err, "remove rule for Compile")
}
