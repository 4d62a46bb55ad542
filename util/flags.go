package util

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to flag names to build the environment variable that overrides them
const EnvPrefix = "GP_"

// SetFlagsFromEnvVars reads and updates flag values from environment variables with prefix GP_
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	visit := func(flags *pflag.FlagSet) {
		flags.VisitAll(func(f *pflag.Flag) {
			// E.g. log-level -> GP_LOG_LEVEL
			envName := FlagNameToEnvVar(f.Name, EnvPrefix)

			value, present := os.LookupEnv(envName)
			if !present {
				return
			}

			if err := flags.Set(f.Name, value); err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		})
	}

	visit(cmd.PersistentFlags())
	visit(cmd.Flags())
}

// FlagNameToEnvVar converts flag name to environment var name adding a prefix,
// replacing dashes and making all uppercase (e.g. api-key-file is converted to GP_API_KEY_FILE)
func FlagNameToEnvVar(cmdFlag string, prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
