package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/spf13/cobra"
)

// AddToRootCommand registers every finestra subcommand on root.
func AddToRootCommand(root *cobra.Command) error {
	serveCmd, err := NewServeCommand()
	if err != nil {
		return err
	}
	cobraServeCmd, err := cli.BuildCobraCommand(serveCmd)
	if err != nil {
		return err
	}
	root.AddCommand(cobraServeCmd)

	navigateCmd, err := NewNavigateCommand()
	if err != nil {
		return err
	}
	cobraNavigateCmd, err := cli.BuildCobraCommand(navigateCmd)
	if err != nil {
		return err
	}
	root.AddCommand(cobraNavigateCmd)

	evalCmd, err := NewEvalCommand()
	if err != nil {
		return err
	}
	cobraEvalCmd, err := cli.BuildCobraCommand(evalCmd)
	if err != nil {
		return err
	}
	root.AddCommand(cobraEvalCmd)

	driveCmd, err := NewDriveCommand()
	if err != nil {
		return err
	}
	cobraDriveCmd, err := cli.BuildCobraCommand(driveCmd)
	if err != nil {
		return err
	}
	root.AddCommand(cobraDriveCmd)

	if err := AddScenarioCommands(root); err != nil {
		return err
	}
	if err := AddJournalCommands(root); err != nil {
		return err
	}

	browseCmd, err := NewBrowseCommand()
	if err != nil {
		return err
	}
	cobraBrowseCmd, err := cli.BuildCobraCommand(browseCmd)
	if err != nil {
		return err
	}
	root.AddCommand(cobraBrowseCmd)

	return nil
}
