package toolset

import "strings"

// msvc drives cl.exe, lib.exe and link.exe, which are expected on PATH
// (a developer command prompt).
type msvc struct{}

func (msvc) compiler(bool) string { return "cl" }

func (msvc) compile(compiler string, flags []string, src, obj string) []string {
	argv := []string{compiler, "/nologo"}
	argv = append(argv, flags...)
	return append(argv, "/c", src, "/Fo"+obj)
}

func (msvc) archive(out string, objs []string) []string {
	return append([]string{"lib", "/nologo", "/OUT:" + out}, objs...)
}

func (msvc) link(_, out string, objs, libs, ldflags []string) []string {
	argv := []string{"link", "/nologo", "/OUT:" + out}
	argv = append(argv, objs...)
	argv = append(argv, libs...)
	return append(argv, ldflags...)
}

func (msvc) includeFlag(dir string) string { return "/I" + dir }

func (msvc) optFlags(level string, debug bool) []string {
	var flags []string
	switch level {
	case "":
	case "0":
		flags = append(flags, "/Od")
	case "1", "s", "z":
		flags = append(flags, "/O1")
	default:
		flags = append(flags, "/O2")
	}
	if debug {
		flags = append(flags, "/Zi")
	}
	return flags
}

func (msvc) systemLib(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".lib") {
		return name
	}
	return name + ".lib"
}

func (msvc) objectExt() string { return ".obj" }

func (msvc) libName(name string) string { return name + ".lib" }

func (msvc) parse(flags []string) GeneralOptions {
	var opts GeneralOptions
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		if len(f) < 2 || (f[0] != '/' && f[0] != '-') {
			opts.Other = append(opts.Other, f)
			continue
		}
		body := f[1:]
		switch {
		case body == "I" || body == "D":
			if i+1 < len(flags) {
				i++
				if body == "I" {
					opts.IncludeDirs = append(opts.IncludeDirs, flags[i])
				} else {
					opts.Defines = append(opts.Defines, flags[i])
				}
			}
		case strings.HasPrefix(body, "I"):
			opts.IncludeDirs = append(opts.IncludeDirs, body[1:])
		case strings.HasPrefix(body, "D"):
			opts.Defines = append(opts.Defines, body[1:])
		case strings.HasPrefix(body, "std:"):
			opts.Standard = body[len("std:"):]
		case body == "Od":
			opts.OptLevel = "0"
		case body == "O1" || body == "O2":
			opts.OptLevel = body[1:]
		case body == "Zi" || body == "Z7":
			opts.Debug = true
		case strings.HasPrefix(body, "W"):
			opts.Warnings = append(opts.Warnings, f)
		default:
			opts.Other = append(opts.Other, f)
		}
	}
	return opts
}
