// evoke init [name], evoke new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/evoke/internal/config"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "evoke"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn creates a project with a library and an executable using it. Only
// missing files are written.
func initIn(dir, name string) {
	writefile(`[project]
name = "`+name+`"
# search_paths = ["third_party"]
# exclude = ["**/test"]

[build]
# toolset = "clang"
# jobs = 8

[flags]
compile = ["-Wall"]

[flags.'target_os == "linux"']
links = ["m"]

# [fetch]
# fmt = "gh:fmtlib/fmt"
`, dir, config.FileName)

	mkdir(dir, "hello", "include", "hello")
	mkdir(dir, "hello", "src")
	mkdir(dir, "app")

	writefile(`#ifndef HELLO_H
#define HELLO_H

#ifdef __cplusplus
extern "C" {
#endif

void hello(const char *who);

#ifdef __cplusplus
} // extern "C"
#endif

#endif
`, dir, "hello", "include", "hello", "hello.h")

	writefile(`#include <stdio.h>
#include "hello/hello.h"

void hello(const char *who) {
    printf("Hello, %s!\n", who);
}
`, dir, "hello", "src", "hello.c")

	writefile(`// Including hello/hello.h is all it takes to depend on the hello component.
#include "hello/hello.h"

int main(void) {
    hello("World");
    return 0;
}
`, dir, "app", "main.c")

	// .gitignore
	writefile(`build/
.evoke/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to build and run.\n",
		color.HiCyanString(programName+" "+dir),
		color.HiCyanString(programName+" run --root "+dir))
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		} else if wd, err := os.Getwd(); err == nil {
			name = filepath.Base(wd)
		}
		initIn(".", name)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]))
	},
}

func init() {
	// evoke init subcommand
	rootCmd.AddCommand(initCmd)

	// evoke new subcommand
	rootCmd.AddCommand(newCmd)
}
