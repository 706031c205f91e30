package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/playperu/fivehints/internal/token"
)

type Config struct {
	secret  string
	noColor bool
}

func (c *Config) codec() (*token.Codec, error) {
	if c.secret == "" {
		return nil, fmt.Errorf("a signing secret is required (--secret or FIVEHINTS_SECRET)")
	}
	return token.NewCodec([]byte(c.secret))
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	keyColor  = color.New(color.FgCyan)
)

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FIVEHINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "fivehintsctl",
		Short:   "Operator tooling for Five Hints challenge tokens.",
		Version: releaseVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.noColor {
				color.NoColor = true
			}
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.secret, "secret", "s", "", "token signing secret (env: FIVEHINTS_SECRET)")
	fs.BoolVar(&cfg.noColor, "no-color", false, "disable colored output (env: FIVEHINTS_NO_COLOR)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newMintCmd(cfg),
		newVerifyCmd(cfg),
		newInspectCmd(cfg),
		newNormalizeCmd(),
		newKeygenCmd(),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("fivehintsctl v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
