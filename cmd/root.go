package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZargorNET/sponsormanager/cmd/cmdutil"
	"github.com/ZargorNET/sponsormanager/cmd/roles"
	"github.com/ZargorNET/sponsormanager/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sponsorapi",
	Short: "Sponsor manager API server",
	Long: `Sponsor manager API server authenticates users against an LDAP directory
or an OpenID Connect provider and issues signed session tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cmd.SetContext(cmdutil.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	flags.String("db-url", "", "Database connection URL (env: SPONSOR_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: SPONSOR_SERVER_ADDR)")
	flags.Bool("debug", false, "Enable debug logging (env: SPONSOR_DEBUG)")

	mustBind("database_url", "db-url")
	mustBind("server_addr", "server-addr")
	mustBind("debug", "debug")

	// Add subcommands
	rootCmd.AddCommand(roles.RolesCmd)
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
