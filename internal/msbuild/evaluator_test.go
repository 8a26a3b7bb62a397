package msbuild

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xamarin/mirepoix/internal/pathutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func includes(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Include)
	}
	return out
}

const propertiesProject = `<Project>
  <PropertyGroup>
    <Configuration Condition="'$(Configuration)' == ''">Debug</Configuration>
    <Platform Condition="'$(Platform)' == ''">AnyCPU</Platform>
    <OutputName>$(MSBuildProjectName).$(Configuration)</OutputName>
    <MSBuildProjectName>Hijacked</MSBuildProjectName>
    <Flavor>project</Flavor>
  </PropertyGroup>
  <PropertyGroup Condition="'$(Configuration)|$(Platform)' == 'Debug|AnyCPU'">
    <DebugSymbols>true</DebugSymbols>
  </PropertyGroup>
  <PropertyGroup Condition=" '$(Configuration)|$(Platform)' == 'Release|AnyCPU' ">
    <Optimize>true</Optimize>
  </PropertyGroup>
</Project>`

func TestEvaluateProperties(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "App/App.csproj", propertiesProject)
	ev := NewXMLEvaluator()

	p, err := ev.Evaluate(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, pathutil.ResolveFull(path), p.FullPath)
	assert.Equal(t, filepath.Dir(p.FullPath), p.Directory)
	assert.Equal(t, "Debug", p.Property("configuration"))
	assert.Equal(t, "App.Debug", p.Property("OutputName"))
	assert.Equal(t, "App", p.Property("MSBuildProjectName"))
	assert.Equal(t, "true", p.Property("DebugSymbols"))
	_, ok := p.LookupProperty("Optimize")
	assert.False(t, ok)
	assert.Equal(t, []string{"Debug|AnyCPU", "Release|AnyCPU"}, p.DeclaredConfigurations())

	p, err = ev.Evaluate(context.Background(), path, map[string]string{
		"Configuration": "Release",
		"Flavor":        "global",
	})
	require.NoError(t, err)
	assert.Equal(t, "Release", p.Property("Configuration"))
	assert.Equal(t, "App.Release", p.Property("OutputName"))
	assert.Equal(t, "global", p.Property("Flavor"))
	assert.Equal(t, "true", p.Property("Optimize"))
	assert.Equal(t, "", p.Property("DebugSymbols"))
	assert.Equal(t, "Release", p.GlobalProperties["Configuration"])
}

const itemsProject = `<Project>
  <PropertyGroup>
    <Shared>..\Shared</Shared>
  </PropertyGroup>
  <ItemDefinitionGroup>
    <Compile>
      <Visible>true</Visible>
    </Compile>
  </ItemDefinitionGroup>
  <ItemGroup>
    <Compile Include="src/**/*.cs" Exclude="src/sub/**" />
    <Compile Include="Extra.cs;$(Shared)\Common.cs" Link="Common" />
    <Compile Remove="Extra.cs" />
    <ProjectReference Include="..\Lib\Lib.csproj">
      <SolutionFolder>libs</SolutionFolder>
      <Configuration Condition="'$(Configuration)' == 'Debug'">Release</Configuration>
    </ProjectReference>
    <EmbeddedResource Include="Strings.resx" LogicalName="%(Filename).resources" />
  </ItemGroup>
  <ItemGroup Condition="'$(Skip)' == 'true'">
    <Compile Include="Skipped.cs" />
  </ItemGroup>
  <ItemGroup>
    <Compile Update="src/a.cs" Generated="yes" />
    <Listing Include="@(Compile->'%(Filename)')" />
  </ItemGroup>
</Project>`

func TestEvaluateItems(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "App/App.csproj", itemsProject)
	writeFile(t, dir, "App/src/a.cs", "")
	writeFile(t, dir, "App/src/sub/b.cs", "")
	writeFile(t, dir, "App/src/c.txt", "")

	p, err := NewXMLEvaluator().Evaluate(context.Background(), path, map[string]string{"Configuration": "Debug"})
	require.NoError(t, err)

	compile := p.ItemsOfType("compile")
	require.Equal(t, []string{filepath.Join("src", "a.cs"), `..\Shared\Common.cs`}, includes(compile))
	assert.Equal(t, "yes", compile[0].MetadataValue("Generated"))
	assert.Equal(t, "true", compile[0].MetadataValue("visible"))
	assert.Equal(t, "Common", compile[1].MetadataValue("Link"))
	assert.Equal(t, "", compile[1].MetadataValue("Generated"))
	assert.Equal(t, p.FullPath, compile[0].DefiningProject)

	refs := p.ItemsOfType(ItemProjectReference)
	require.Len(t, refs, 1)
	assert.Equal(t, `..\Lib\Lib.csproj`, refs[0].Include)
	assert.Equal(t, "libs", refs[0].MetadataValue("SolutionFolder"))
	assert.Equal(t, "Release", refs[0].MetadataValue("Configuration"))

	res := p.ItemsOfType(ItemEmbeddedResource)
	require.Len(t, res, 1)
	assert.Equal(t, "Strings.resources", res[0].MetadataValue("LogicalName"))

	assert.Equal(t, []string{"a", "Common"}, includes(p.ItemsOfType("Listing")))
	assert.Equal(t, []string{"Compile", "EmbeddedResource", "Listing", "ProjectReference"}, p.ItemTypes())
}

func TestEvaluateImportAndChoose(t *testing.T) {
	dir := t.TempDir()
	props := writeFile(t, dir, "common.props", `<Project>
  <PropertyGroup>
    <FromImport>$(MSBuildThisFileDirectory)</FromImport>
    <Kind>imported</Kind>
  </PropertyGroup>
  <ItemGroup>
    <Compile Include="Imported.cs" />
  </ItemGroup>
</Project>`)
	path := writeFile(t, dir, "app/App.csproj", `<Project>
  <Import Project="../common.props" />
  <Import Project="missing.props" Condition="Exists('missing.props')" />
  <Choose>
    <When Condition="'$(Kind)' == 'imported'">
      <PropertyGroup>
        <Branch>when</Branch>
      </PropertyGroup>
    </When>
    <Otherwise>
      <PropertyGroup>
        <Branch>otherwise</Branch>
      </PropertyGroup>
    </Otherwise>
  </Choose>
  <PropertyGroup>
    <After>$(MSBuildThisFileDirectory)</After>
  </PropertyGroup>
</Project>`)

	p, err := NewXMLEvaluator().Evaluate(context.Background(), path, nil)
	require.NoError(t, err)

	root := pathutil.ResolveFull(dir)
	assert.Equal(t, root+string(filepath.Separator), p.Property("FromImport"))
	assert.Equal(t, filepath.Join(root, "app")+string(filepath.Separator), p.Property("After"))
	assert.Equal(t, "when", p.Property("Branch"))
	assert.Equal(t, []string{pathutil.ResolveFull(props)}, p.Imports())

	compile := p.ItemsOfType(ItemCompile)
	require.Len(t, compile, 1)
	assert.Equal(t, pathutil.ResolveFull(props), compile[0].DefiningProject)
}

func TestEvaluateErrors(t *testing.T) {
	dir := t.TempDir()
	ev := NewXMLEvaluator()
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, writeFile(t, dir, "broken.csproj", "<Project><PropertyGroup>"), nil)
	assert.ErrorIs(t, err, ErrInvalidProject)

	_, err = ev.Evaluate(ctx, writeFile(t, dir, "other.csproj", "<Root/>"), nil)
	assert.ErrorIs(t, err, ErrInvalidProject)

	_, err = ev.Evaluate(ctx, writeFile(t, dir, "import.csproj", `<Project><Import Project="nope.props" /></Project>`), nil)
	assert.ErrorIs(t, err, ErrImportNotFound)

	_, err = ev.Evaluate(ctx, writeFile(t, dir, "cond.csproj", `<Project><PropertyGroup Condition="'a' = 'b'" /></Project>`), nil)
	var ce *ConditionError
	assert.ErrorAs(t, err, &ce)

	_, err = ev.Evaluate(ctx, filepath.Join(dir, "absent.csproj"), nil)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ev.Evaluate(cancelled, writeFile(t, dir, "ok.csproj", "<Project />"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadExplicitProjectGUID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Legacy.csproj", "\ufeff"+`<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="15.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <PropertyGroup Condition="'$(X)' == ''">
    <ProjectGuid>{00000000-0000-0000-0000-000000000000}</ProjectGuid>
  </PropertyGroup>
  <PropertyGroup>
    <OutputType>Library</OutputType>
    <ProjectGuid> {11111111-2222-3333-4444-555555555555} </ProjectGuid>
  </PropertyGroup>
</Project>`)
	got, err := ReadExplicitProjectGUID(path)
	require.NoError(t, err)
	assert.Equal(t, "{11111111-2222-3333-4444-555555555555}", got)

	got, err = ReadExplicitProjectGUID(writeFile(t, dir, "Sdk.csproj", `<Project Sdk="Microsoft.NET.Sdk"><PropertyGroup><TargetFramework>net8.0</TargetFramework></PropertyGroup></Project>`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCachingEvaluator(t *testing.T) {
	calls := 0
	inner := EvaluatorFunc(func(ctx context.Context, path string, globals map[string]string) (*Project, error) {
		calls++
		if filepath.Base(path) == "bad.csproj" {
			return nil, ErrInvalidProject
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newProject(path, filepath.Dir(path), globals), nil
	})
	c, err := NewCachingEvaluator(inner, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a1, err := c.Evaluate(ctx, "/src/A.csproj", map[string]string{"Configuration": "Debug", "Platform": "AnyCPU"})
	require.NoError(t, err)
	a2, err := c.Evaluate(ctx, "/src/A.csproj", map[string]string{"platform": "AnyCPU", "configuration": "Debug"})
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, calls)

	_, err = c.Evaluate(ctx, "/src/A.csproj", map[string]string{"Configuration": "Release"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	for i := 0; i < 2; i++ {
		_, err = c.Evaluate(ctx, "/src/bad.csproj", nil)
		assert.ErrorIs(t, err, ErrInvalidProject)
	}
	assert.Equal(t, 3, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for i := 0; i < 2; i++ {
		_, err = c.Evaluate(cancelled, "/src/C.csproj", nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 5, calls)
	assert.Equal(t, 3, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
