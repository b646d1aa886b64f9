package toolset

import (
	"runtime"
	"strings"
)

// gnu drives gcc and clang, which share a command line.
type gnu struct {
	cc, cxx string
}

func newGNU(kind Kind, cc, cxx string) gnu {
	if cc == "" {
		cc = findKindCompiler(kind, false)
	}
	if cxx == "" {
		cxx = findKindCompiler(kind, true)
	}
	return gnu{cc: cc, cxx: cxx}
}

func (g gnu) compiler(cxx bool) string {
	if cxx {
		return g.cxx
	}
	return g.cc
}

func (gnu) compile(compiler string, flags []string, src, obj string) []string {
	argv := make([]string, 0, len(flags)+5)
	argv = append(argv, compiler)
	argv = append(argv, flags...)
	return append(argv, "-c", src, "-o", obj)
}

func (gnu) archive(out string, objs []string) []string {
	return append([]string{"ar", "rcs", out}, objs...)
}

func (gnu) link(compiler, out string, objs, libs, ldflags []string) []string {
	argv := []string{compiler, "-o", out}
	argv = append(argv, objs...)
	argv = append(argv, libs...)
	return append(argv, ldflags...)
}

func (gnu) includeFlag(dir string) string { return "-I" + dir }

func (gnu) optFlags(level string, debug bool) []string {
	var flags []string
	if level != "" {
		flags = append(flags, "-O"+level)
	}
	if debug {
		flags = append(flags, "-g")
	}
	return flags
}

func (gnu) systemLib(name string) string { return "-l" + name }

func (gnu) objectExt() string { return ".o" }

func (gnu) libName(name string) string { return "lib" + name + ".a" }

func (gnu) parse(flags []string) GeneralOptions {
	var opts GeneralOptions
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		// -I dir and -D name take their value from the next argument
		next := func(prefix string) (string, bool) {
			if f == prefix && i+1 < len(flags) {
				i++
				return flags[i], true
			}
			if v, ok := strings.CutPrefix(f, prefix); ok && v != "" {
				return v, true
			}
			return "", false
		}

		if v, ok := next("-I"); ok {
			opts.IncludeDirs = append(opts.IncludeDirs, v)
		} else if v, ok := next("-D"); ok {
			opts.Defines = append(opts.Defines, v)
		} else if v, ok := strings.CutPrefix(f, "-std="); ok {
			opts.Standard = v
		} else if v, ok := strings.CutPrefix(f, "-O"); ok {
			opts.OptLevel = v
		} else if f == "-g" || (len(f) == 3 && strings.HasPrefix(f, "-g")) {
			opts.Debug = true
		} else if (strings.HasPrefix(f, "-W") && !strings.HasPrefix(f, "-Wl,")) || f == "-pedantic" {
			opts.Warnings = append(opts.Warnings, f)
		} else {
			opts.Other = append(opts.Other, f)
		}
	}
	return opts
}

var (
	gccCompilers   = [2][]string{{"gcc", "cc"}, {"g++", "c++"}}
	clangCompilers = [2][]string{{"clang"}, {"clang++"}}
)

// findKindCompiler honors CC/CXX like findCompiler, then falls back to the
// usual driver names of the family.
func findKindCompiler(kind Kind, cxx bool) string {
	if env := compilerFromEnv(cxx); env != "" {
		return env
	}
	names := gccCompilers
	if kind == KindClang {
		names = clangCompilers
	}
	idx := 0
	if cxx {
		idx = 1
	}
	if path := lookPath(names[idx]...); path != "" {
		return path
	}
	if runtime.GOOS == "darwin" && kind == KindGCC {
		// gcc on macOS is usually clang
		if path := lookPath(clangCompilers[idx]...); path != "" {
			return path
		}
	}
	// let the spawn fail with a clear "not found" later
	return names[idx][0]
}
