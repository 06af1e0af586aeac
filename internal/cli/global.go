package cli

import (
	"fmt"

	"github.com/socify/socify_downloader/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is stamped at build time.
var Version = "dev"

// GlobalOptions are the flags every command shares. Flags win over environment variables.
type GlobalOptions struct {
	APIURL    string
	TargetDir string
	LogLevel  string

	cfg *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.APIURL, "api-url", o.APIURL, "Base URL of the extraction backend (env SOCIFY_API_URL)")
	fs.StringVarP(&o.TargetDir, "target-dir", "d", o.TargetDir, "Directory retrieved files are saved to (env TARGET_DIR)")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "One of DEBUG, INFO, WARN, ERROR (env LOG_LEVEL)")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("api-url") {
		cfg.APIURL = o.APIURL
	}

	if flags.Changed("target-dir") {
		cfg.TargetDir = o.TargetDir
	}

	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}

	o.cfg = cfg

	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.cfg == nil {
		return fmt.Errorf("configuration was not loaded")
	}

	return o.cfg.Validate()
}

// Config returns the merged configuration once Complete has run.
func (o *GlobalOptions) Config() *config.Config {
	return o.cfg
}
