package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ptmscope/ptmscope/cmd/importfile"
	"github.com/ptmscope/ptmscope/cmd/serve"
	"github.com/ptmscope/ptmscope/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ptmscope",
		Short: "PTMscope CLI",
		Long:  "Upload, consolidate and browse protein modification sites from proteomics result files.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		importfile.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		// Re-unmarshal so command-line flags take precedence over the file.
		return conf.Load(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "db", viper.GetString("output.sqlite.path"), "Path to the SQLite database file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
