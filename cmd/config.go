package cmd

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and check the session defaults",
}

var configSetCmd = &cobra.Command{
	Use:   "set <model|keywords|locations|skills> <value>",
	Short: "Check an update of the defaults and print the result",
	Long: `Applies the update to the loaded defaults the same way the /set
command of the bot does and prints the confirmation. List values are
comma-separated. The configuration file is not changed.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			log.Fatalf("getting a config: %v", err)
		}
		return setDefault(cmd.OutOrStdout(), cfg.Defaults, args[0], strings.Join(args[1:], " "))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective session defaults",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := getConfig()
		if err != nil {
			log.Fatalf("getting a config: %v", err)
		}
		return showDefaults(cmd.OutOrStdout(), cfg.Defaults)
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func setDefault(w io.Writer, defaults config.Defaults, param, value string) error {
	registry := config.NewRegistry(defaults, nil, config.WithModelValidator(ai.ValidateModel))

	text, err := registry.Update(param, value)
	fmt.Fprintln(w, text)
	if err != nil {
		return err
	}

	return showDefaults(w, registry.Current().Defaults())
}

func showDefaults(w io.Writer, defaults config.Defaults) error {
	out, err := yaml.Marshal(map[string]config.Defaults{"defaults": defaults})
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}

	_, err = w.Write(out)
	return err
}
