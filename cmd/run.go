// evoke run [component] [args...]
package cmd

import (
	"errors"
	"os"
	"os/exec"

	"github.com/qobs-build/evoke/internal/builder"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/spf13/cobra"
)

func doRun(cmd *cobra.Command, args []string) {
	component := ""
	if len(args) > 0 {
		component = args[0]
		args = args[1:] // other arguments will be passed to program
	}
	b, err := builder.NewBuilderInDirectory(rootDir(nil), overrides(cmd))
	if err != nil {
		msg.Fatal("%v", err)
	}
	if err := b.BuildAndRun(cmd.Context(), component, args); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		msg.Fatal("%v", err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [component] [args...]",
	Short: "Build the project and run an executable component",
	Long: `Build the project and run an executable component. If no component is
given and the project has exactly one executable, that one is run. The
project root is taken from --root or ".".`,
	Args: cobra.ArbitraryArgs,
	Run:  doRun,
}

func init() {
	// evoke run subcommand
	rootCmd.AddCommand(runCmd)
	addBuildFlags(runCmd)
	runCmd.Flags().SetInterspersed(false)
}
