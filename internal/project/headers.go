package project

import (
	"fmt"
	"io"
	"slices"

	"github.com/qobs-build/evoke/internal/builderr"
)

// HeaderSet collects include names that could not be resolved. It only grows,
// keeps each normalized name once and remembers insertion order, which is
// deterministic because files are scanned in sorted order.
type HeaderSet struct {
	names []string
	from  map[string]string
}

func NewHeaderSet() *HeaderSet {
	return &HeaderSet{from: make(map[string]string)}
}

// Add records name, first seen in file from. It reports whether name is new.
// "./x.h" and "x.h" are the same header.
func (s *HeaderSet) Add(name, from string) bool {
	name = Normalize(name)
	if _, ok := s.from[name]; ok {
		return false
	}
	s.from[name] = from
	s.names = append(s.names, name)
	return true
}

func (s *HeaderSet) Has(name string) bool {
	_, ok := s.from[Normalize(name)]
	return ok
}

func (s *HeaderSet) Len() int { return len(s.names) }

func (s *HeaderSet) Empty() bool { return len(s.names) == 0 }

func (s *HeaderSet) Names() []string { return slices.Clone(s.names) }

func (s *HeaderSet) Warnings() []*builderr.UnknownHeaderWarning {
	out := make([]*builderr.UnknownHeaderWarning, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, &builderr.UnknownHeaderWarning{Name: name, IncludedFrom: s.from[name]})
	}
	return out
}

// Report writes one "Unknown header: <name>" line per name.
func (s *HeaderSet) Report(w io.Writer) {
	for _, name := range s.names {
		fmt.Fprintf(w, "Unknown header: %s\n", name)
	}
}

// systemHeaders are <...> includes provided by the C/C++ standard library or
// the platform. They are never reported as unknown.
var systemHeaders = map[string]bool{}

func init() {
	for _, h := range []string{
		// C
		"assert.h", "complex.h", "ctype.h", "errno.h", "fenv.h", "float.h", "inttypes.h",
		"iso646.h", "limits.h", "locale.h", "math.h", "setjmp.h", "signal.h", "stdalign.h",
		"stdarg.h", "stdatomic.h", "stdbit.h", "stdbool.h", "stdckdint.h", "stddef.h",
		"stdint.h", "stdio.h", "stdlib.h", "stdnoreturn.h", "string.h", "tgmath.h",
		"threads.h", "time.h", "uchar.h", "wchar.h", "wctype.h",
		// C++
		"algorithm", "any", "array", "atomic", "barrier", "bit", "bitset", "cassert",
		"cctype", "cerrno", "cfenv", "cfloat", "charconv", "chrono", "cinttypes", "climits",
		"clocale", "cmath", "codecvt", "compare", "complex", "concepts", "condition_variable",
		"coroutine", "csetjmp", "csignal", "cstdarg", "cstddef", "cstdint", "cstdio",
		"cstdlib", "cstring", "ctime", "cuchar", "cwchar", "cwctype", "deque", "exception",
		"execution", "expected", "filesystem", "flat_map", "flat_set", "format",
		"forward_list", "fstream", "functional", "future", "generator", "initializer_list",
		"iomanip", "ios", "iosfwd", "iostream", "istream", "iterator", "latch", "limits",
		"list", "locale", "map", "mdspan", "memory", "memory_resource", "mutex", "new",
		"numbers", "numeric", "optional", "ostream", "print", "queue", "random", "ranges",
		"ratio", "regex", "scoped_allocator", "semaphore", "set", "shared_mutex",
		"source_location", "span", "spanstream", "sstream", "stack", "stacktrace",
		"stdexcept", "stdfloat", "stop_token", "streambuf", "string", "string_view",
		"strstream", "syncstream", "system_error", "thread", "tuple", "type_traits",
		"typeindex", "typeinfo", "unordered_map", "unordered_set", "utility", "valarray",
		"variant", "vector", "version",
		// POSIX and common platform headers
		"dirent.h", "dlfcn.h", "fcntl.h", "glob.h", "grp.h", "netdb.h", "poll.h",
		"pthread.h", "pwd.h", "sched.h", "semaphore.h", "spawn.h", "strings.h",
		"syslog.h", "termios.h", "unistd.h", "utime.h", "arpa/inet.h", "netinet/in.h",
		"netinet/tcp.h", "sys/epoll.h", "sys/ioctl.h", "sys/mman.h", "sys/resource.h",
		"sys/select.h", "sys/socket.h", "sys/stat.h", "sys/time.h", "sys/types.h",
		"sys/uio.h", "sys/un.h", "sys/wait.h", "windows.h", "winsock2.h", "ws2tcpip.h",
		"io.h", "direct.h", "process.h", "intrin.h", "immintrin.h", "emmintrin.h",
		"xmmintrin.h", "arm_neon.h",
	} {
		systemHeaders[h] = true
	}
}
