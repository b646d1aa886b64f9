package toolset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTree(t *testing.T, files map[string]string) *project.Project {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj")
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	p, err := project.Load(root, project.Options{BuildDir: "build"})
	require.NoError(t, err)
	return p
}

var tree = map[string]string{
	"app/main.cpp":          "#include \"net/net.h\"\nint main() { return 0; }\n",
	"net/include/net/net.h": "#include \"log.h\"\n",
	"net/src/net.c":         "#include \"net/net.h\"\n",
	"log/log.h":             "",
	"log/log.cpp":           "#include \"log.h\"\n",
	"inc/only.h":            "",
}

func argvs(cmds []*command.Command) [][]string {
	var out [][]string
	for _, c := range cmds {
		out = append(out, c.Invocation.Argv)
	}
	return out
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Clang")
	require.NoError(t, err)
	assert.Equal(t, KindClang, k)
	assert.Equal(t, "msvc", KindMSVC.String())

	_, err = ParseKind("tcc")
	assert.ErrorContains(t, err, "gcc, clang, msvc")
	assert.Equal(t, []string{"gcc", "clang", "msvc"}, Kinds())
}

func TestGNUCommands(t *testing.T) {
	p := loadTree(t, tree)
	buildDir := filepath.Join(p.Root, "build")
	ts, err := New(KindGCC, Settings{
		BuildDir: buildDir,
		CC:       "cc",
		CXX:      "c++",
		Flags:    []string{"-Wall"},
		Links:    []string{"m"},
		OptLevel: "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "gcc", ts.Name())
	require.NoError(t, ts.CreateCommandsFor(p))

	assert.Empty(t, p.ComponentCommands("inc"), "header-only components get no commands")

	logCmds := p.ComponentCommands("log")
	require.Len(t, logCmds, 2)
	logObj := filepath.Join(buildDir, "obj", "log", "log.cpp.o")
	logLib := filepath.Join(buildDir, "liblog.a")
	assert.Equal(t, [][]string{
		{"c++", "-O2", "-Wall", "-I" + filepath.Join(p.Root, "log"), "-I" + p.Root, "-c", filepath.Join(p.Root, "log", "log.cpp"), "-o", logObj},
		{"ar", "rcs", logLib, logObj},
	}, argvs(logCmds))
	assert.Equal(t, []command.ID{logCmds[0].ID}, logCmds[1].Deps)

	netCmds := p.ComponentCommands("net")
	require.Len(t, netCmds, 2)
	assert.Equal(t, "cc", netCmds[0].Invocation.Argv[0], "C sources use the C compiler")
	assert.Contains(t, netCmds[0].Invocation.Argv, "-I"+filepath.Join(p.Root, "net", "include"))
	assert.Contains(t, netCmds[0].Invocation.Argv, "-I"+filepath.Join(p.Root, "log"))
	assert.Contains(t, netCmds[0].Inputs, filepath.Join(p.Root, "log", "log.h"), "include closure is an input")

	appCmds := p.ComponentCommands("app")
	require.Len(t, appCmds, 2)
	link := appCmds[1]
	appObj := filepath.Join(buildDir, "obj", "app", "main.cpp.o")
	netLib := filepath.Join(buildDir, "libnet.a")
	assert.Equal(t, []string{"c++", "-o", ExecutablePath(buildDir, "app"), appObj, netLib, logLib, "-lm"}, link.Invocation.Argv)
	assert.ElementsMatch(t, []command.ID{appCmds[0].ID, netCmds[1].ID, logCmds[1].ID}, link.Deps)
	assert.Equal(t, "LINK "+filepath.Base(ExecutablePath(buildDir, "app")), link.Invocation.Display)

	assert.DirExists(t, filepath.Join(buildDir, "obj", "app"))
}

func TestMSVCCommands(t *testing.T) {
	p := loadTree(t, map[string]string{
		"lib/lib.h":   "",
		"lib/lib.cpp": "#include \"lib.h\"\n",
	})
	buildDir := filepath.Join(p.Root, "build")
	ts, err := New(KindMSVC, Settings{BuildDir: buildDir, OptLevel: "3", Debug: true})
	require.NoError(t, err)
	require.NoError(t, ts.CreateCommandsFor(p))

	cmds := p.ComponentCommands("lib")
	require.Len(t, cmds, 2)
	obj := filepath.Join(buildDir, "obj", "lib", "lib.cpp.obj")
	assert.Equal(t, []string{"cl", "/nologo", "/O2", "/Zi", "/I" + filepath.Join(p.Root, "lib"), "/I" + p.Root, "/c", filepath.Join(p.Root, "lib", "lib.cpp"), "/Fo" + obj}, cmds[0].Invocation.Argv)
	assert.Equal(t, []string{"lib", "/nologo", "/OUT:" + filepath.Join(buildDir, "lib.lib"), obj}, cmds[1].Invocation.Argv)
}

func TestUnity(t *testing.T) {
	p := loadTree(t, map[string]string{
		"mix/a.cpp": "",
		"mix/b.cpp": "",
		"mix/c.c":   "",
	})
	buildDir := filepath.Join(p.Root, "build")
	ts, err := New(KindClang, Settings{BuildDir: buildDir, CC: "clang", CXX: "clang++"})
	require.NoError(t, err)
	require.NoError(t, ts.CreateCommandsForUnity(p))

	cmds := p.ComponentCommands("mix")
	require.Len(t, cmds, 3, "one compile per language plus the archive")
	assert.Equal(t, "clang", cmds[0].Invocation.Argv[0])
	assert.Equal(t, "clang++", cmds[1].Invocation.Argv[0])

	unityCpp := filepath.Join(buildDir, "unity", "mix.cpp")
	data, err := os.ReadFile(unityCpp)
	require.NoError(t, err)
	assert.Equal(t,
		"#include \""+filepath.ToSlash(filepath.Join(p.Root, "mix", "a.cpp"))+"\"\n"+
			"#include \""+filepath.ToSlash(filepath.Join(p.Root, "mix", "b.cpp"))+"\"\n",
		string(data))

	// unchanged content keeps the old file
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(unityCpp, old, old))
	p.ResetCommands()
	require.NoError(t, ts.CreateCommandsForUnity(p))
	fi, err := os.Stat(unityCpp)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(old))
}

func TestParseGeneralOptions(t *testing.T) {
	ts, err := New(KindGCC, Settings{BuildDir: t.TempDir(), CC: "cc", CXX: "c++"})
	require.NoError(t, err)
	got := ts.ParseGeneralOptions([]string{"-Iinc", "-I", "other", "-DX=1", "-std=c++20", "-O2", "-g", "-Wall", "-Wl,--as-needed", "-fPIC"})
	assert.Equal(t, GeneralOptions{
		IncludeDirs: []string{"inc", "other"},
		Defines:     []string{"X=1"},
		OptLevel:    "2",
		Debug:       true,
		Standard:    "c++20",
		Warnings:    []string{"-Wall"},
		Other:       []string{"-Wl,--as-needed", "-fPIC"},
	}, got)

	ms, err := New(KindMSVC, Settings{BuildDir: t.TempDir()})
	require.NoError(t, err)
	got = ms.ParseGeneralOptions([]string{"/Iinc", "/DX", "/std:c++latest", "/O2", "/Zi", "/W4", "/EHsc"})
	assert.Equal(t, GeneralOptions{
		IncludeDirs: []string{"inc"},
		Defines:     []string{"X"},
		OptLevel:    "2",
		Debug:       true,
		Standard:    "c++latest",
		Warnings:    []string{"/W4"},
		Other:       []string{"/EHsc"},
	}, got)
}

func TestDuplicateTargets(t *testing.T) {
	p := loadTree(t, map[string]string{
		"a_b/x.cpp": "",
		"a/b/y.cpp": "",
	})
	ts, err := New(KindGCC, Settings{BuildDir: filepath.Join(p.Root, "build"), CC: "cc", CXX: "c++"})
	require.NoError(t, err)
	err = ts.CreateCommandsFor(p)
	require.Error(t, err)
	assert.ErrorContains(t, err, "components a/b and a_b both produce "+filepath.Join(p.Root, "build", "liba_b.a"))
}

var toolTree = map[string]string{
	"app/main.cpp":  "#include \"tool/tool.h\"\nint main() { return tool(); }\n",
	"tool/tool.h":   "int tool();\n",
	"tool/tool.cpp": "#include \"tool.h\"\nint tool() { return 0; }\n",
	"tool/main.cpp": "#include \"tool.h\"\nint main() { return tool(); }\n",
}

func TestExecutableUsesExecutable(t *testing.T) {
	p := loadTree(t, toolTree)
	require.Equal(t, []string{"tool"}, p.Components["app"].Deps)
	buildDir := filepath.Join(p.Root, "build")
	ts, err := New(KindGCC, Settings{BuildDir: buildDir, CC: "cc", CXX: "c++"})
	require.NoError(t, err)
	require.NoError(t, ts.CreateCommandsFor(p))

	toolCmds := p.ComponentCommands("tool")
	require.Len(t, toolCmds, 3)
	appCmds := p.ComponentCommands("app")
	require.Len(t, appCmds, 2)

	// tool's main() stays out of app
	link := appCmds[1]
	appObj := filepath.Join(buildDir, "obj", "app", "main.cpp.o")
	toolObj := filepath.Join(buildDir, "obj", "tool", "tool.cpp.o")
	assert.Equal(t, []string{"c++", "-o", ExecutablePath(buildDir, "app"), appObj, toolObj}, link.Invocation.Argv)
	assert.ElementsMatch(t, []command.ID{appCmds[0].ID, toolCmds[1].ID}, link.Deps)
	assert.Contains(t, link.Inputs, toolObj)

	p.ResetCommands()
	err = ts.CreateCommandsForUnity(p)
	assert.ErrorContains(t, err, "app uses headers of executable tool")
}
