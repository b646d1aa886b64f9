// evoke [root], evoke build [root]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/qobs-build/evoke/internal/builder"
	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagRoot      string
	flagJobs      int
	flagProfile   string
	flagUnity     bool
	flagCompileDB bool
	flagCMake     bool
	flagNinja     bool
	flagVerbose   bool

	flagToolset EnumValue = NewEnumValue("", map[string]string{
		"gcc":   "GNU compiler collection",
		"clang": "Clang / LLVM",
		"msvc":  "Microsoft Visual C++ (cl, lib, link)",
	})
	flagReporter EnumValue = NewEnumValue("", map[string]string{
		"guess":    "progress on a terminal, simple otherwise (default)",
		"console":  "a line per command with its output",
		"progress": "a progress bar",
		"simple":   "plain lines, for logs and CI",
		"silent":   "nothing but errors",
	})
)

// rootDir picks the project root from the positional argument or --root.
func rootDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if flagRoot != "" {
		return flagRoot
	}
	return "."
}

func overrides(cmd *cobra.Command) builder.Overrides {
	if cmd.Flags().Changed("jobs") && flagJobs < 1 {
		msg.Fatal("%v", &builderr.ConfigurationError{Field: "jobs", Value: flagJobs, Reason: "must be at least 1"})
	}
	return builder.Overrides{
		Jobs:      flagJobs,
		Toolset:   flagToolset.Value(),
		Reporter:  flagReporter.Value(),
		Profile:   flagProfile,
		Unity:     flagUnity,
		CompileDB: flagCompileDB,
		CMake:     flagCMake,
		Ninja:     flagNinja,
		Verbose:   flagVerbose,
	}
}

func doBuild(cmd *cobra.Command, args []string) {
	b, err := builder.NewBuilderInDirectory(rootDir(args), overrides(cmd))
	if err != nil {
		msg.Fatal("%v", err)
	}
	res, err := b.Build(cmd.Context())
	if err != nil {
		if res == nil {
			msg.Fatal("%v", err)
		}
		msg.Fatal("build failed: %s", res.Summary())
	}
}

var rootCmd = &cobra.Command{
	Use:   "evoke [root]",
	Short: "Build C and C++ projects from their #include graph",
	Long: `evoke builds C and C++ projects without build scripts. Every directory
with sources is a component, #include directives decide which components
depend on each other, and components with a main() become executables.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		msg.SetVerbose(flagVerbose)
	},
}

var buildCmd = &cobra.Command{
	Use:   "build [root]",
	Short: "Build the project",
	Long:  `Build the project. If no root is given, uses --root or "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Root directory of the project")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Print debug output and the scanned project")
	addBuildFlags(rootCmd)

	// evoke build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Run N commands in parallel (default: logical cores, at least 4)")
	cmd.Flags().StringVarP(&flagProfile, "profile", "p", "", "Build with the given profile (default: debug)")
	cmd.Flags().BoolVarP(&flagUnity, "unity", "u", false, "Compile each component as a single unity file")
	cmd.Flags().BoolVar(&flagCompileDB, "cp", false, "Generate compile_commands.json")
	cmd.Flags().BoolVar(&flagCMake, "cm", false, "Generate CMakeLists.txt")
	cmd.Flags().BoolVar(&flagNinja, "ninja", false, "Generate build.ninja in the build directory")
	cmd.Flags().VarP(&flagToolset, "toolset", "t", "Toolset to build with, one of "+flagToolset.HelpString())
	cmd.RegisterFlagCompletionFunc("toolset", flagToolset.CompletionFunc())
	cmd.Flags().VarP(&flagReporter, "reporter", "r", "How to report progress, one of "+flagReporter.HelpString())
	cmd.RegisterFlagCompletionFunc("reporter", flagReporter.CompletionFunc())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
