package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/finestra/cmd/finestra/cmds"
	"github.com/go-go-golems/finestra/cmd/finestra/doc"
)

var rootCmd = &cobra.Command{
	Use:   "finestra",
	Short: "finestra drives embedded web views over a declarative bridge",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
	},
}

func main() {
	helpSystem := help.NewHelpSystem()
	err := doc.AddDocToHelpSystem(helpSystem)
	cobra.CheckErr(err)
	helpSystem.SetupCobraRootCommand(rootCmd)

	err = clay.InitViper("finestra", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	cobra.CheckErr(err)

	err = cmds.AddToRootCommand(rootCmd)
	cobra.CheckErr(err)

	err = rootCmd.Execute()
	cobra.CheckErr(err)
}
