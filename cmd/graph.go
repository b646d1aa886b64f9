// evoke graph [root]
package cmd

import (
	"fmt"
	"os"

	"github.com/qobs-build/evoke/internal/builder"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/qobs-build/evoke/internal/project"
	"github.com/spf13/cobra"
)

var flagCommands bool

func doGraph(cmd *cobra.Command, args []string) {
	b, err := builder.NewBuilderInDirectory(rootDir(args), overrides(cmd))
	if err != nil {
		msg.Fatal("%v", err)
	}

	var p *project.Project
	if flagCommands {
		p, _, err = b.Prepare()
	} else {
		p, err = b.Scan()
	}
	if err != nil {
		msg.Fatal("%v", err)
	}
	p.Dump(os.Stdout)

	if order, err := p.TopoOrder(); err == nil {
		fmt.Printf("build order: %v\n", order)
	}
}

var graphCmd = &cobra.Command{
	Use:   "graph [root]",
	Short: "Print components, files and dependencies",
	Long: `Scan the project and print every component with its files, the
resolved includes, the dependencies between components and the headers that
could not be found.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doGraph,
}

func init() {
	// evoke graph subcommand
	rootCmd.AddCommand(graphCmd)
	addBuildFlags(graphCmd)
	graphCmd.Flags().BoolVarP(&flagCommands, "commands", "c", false, "Also create and print the commands")
}
