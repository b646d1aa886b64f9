package toolset

import (
	"os"
	"os/exec"
)

// TODO: zig cc
var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

func compilerFromEnv(needCxx bool) string {
	if needCxx {
		return os.Getenv("CXX")
	}
	return os.Getenv("CC")
}

// findCompiler attempts to find a suitable C or C++ compiler on the system
func findCompiler(needCxx bool) string {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}

	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	if needCxx {
		return lookPath(commonCxxCompilers...)
	}
	return lookPath(commonCCompilers...)
}

// lookPath returns the first of names found in PATH, or "".
func lookPath(names ...string) string {
	for _, compiler := range names {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}
	return ""
}
