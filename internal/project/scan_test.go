package project

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestScanDirectives(t *testing.T) {
	src := `// header
#include "a.h"
#  include <b/c.h>
#if 0
#include "disabled.h"
#endif
#include FOO_H
#include_next <next.h>
#import "objc.h"
#includes "nope.h"
#include "unclosed.h
#include ""
	#include"tight.h"
#define X 1
`
	incs, hasMain := scanDirectives([]byte(src))
	want := []directive{
		{name: "a.h", line: 2},
		{name: "b/c.h", system: true, line: 3},
		{name: "disabled.h", line: 5},
		{name: "next.h", system: true, line: 8},
		{name: "objc.h", line: 9},
		{name: "tight.h", line: 13},
	}
	if diff := cmp.Diff(want, incs, cmp.AllowUnexported(directive{})); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, hasMain)
}

func TestScanMain(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"int main(int argc, char **argv) {", true},
		{"int main() {}", true},
		{"  auto main() -> int {", true},
		{"extern \"C\" int main(void)", true},
		{"int wmain(int argc, wchar_t **argv)", true},
		{"int mainloop() {}", false},
		{"static int domain(void);", false},
		{"// int main()", false},
	}
	for _, tt := range tests {
		_, got := scanDirectives([]byte(tt.src))
		assert.Equal(t, tt.want, got, tt.src)
	}
}

func TestClassify(t *testing.T) {
	for _, name := range []string{"a.h", "a.HPP", "x/y.inl", "t.tcc"} {
		kind, ok := Classify(name)
		assert.True(t, ok, name)
		assert.Equal(t, KindHeader, kind, name)
	}
	for _, name := range []string{"a.c", "a.cpp", "a.CC", "a.mm"} {
		kind, ok := Classify(name)
		assert.True(t, ok, name)
		assert.Equal(t, KindSource, kind, name)
	}
	_, ok := Classify("README.md")
	assert.False(t, ok)

	assert.False(t, IsCxx("a.c"))
	assert.True(t, IsCxx("a.cc"))
}

func TestScanBlockComment(t *testing.T) {
	incs, _ := scanDirectives([]byte("/*\n#include \"old.h\"\n*/\n"))
	assert.Equal(t, []directive{{name: "old.h", line: 2}}, incs)
}
