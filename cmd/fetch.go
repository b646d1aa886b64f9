// evoke fetch [root]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/evoke/internal/builder"
	"github.com/qobs-build/evoke/internal/config"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/spf13/cobra"
)

func doFetch(cmd *cobra.Command, args []string) {
	b, err := builder.NewBuilderInDirectory(rootDir(args), builder.Overrides{})
	if err != nil {
		msg.Fatal("%v", err)
	}
	if len(b.Config().Fetch) == 0 {
		msg.Info("nothing to fetch, add sources under [fetch] in %s", filepath.Join(b.Root(), config.FileName))
		return
	}
	roots, err := b.Fetch()
	if err != nil {
		msg.Fatal("%v", err)
	}
	for _, r := range roots {
		fmt.Fprintf(os.Stdout, "%s %s -> %s\n", color.HiGreenString("Ready"), r.Name, filepath.ToSlash(r.Dir))
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [root]",
	Short: "Fetch the external header roots listed under [fetch]",
	Args:  cobra.MaximumNArgs(1),
	Run:   doFetch,
}

func init() {
	// evoke fetch subcommand
	rootCmd.AddCommand(fetchCmd)
}
