package commands

import (
	"github.com/savaki/secret-sync/internal/di"
	"github.com/urfave/cli/v2"
)

// GlobalFlags returns the flags shared by every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment name (dev, stg, or prd) - selects the SSM path and Secrets Manager secret",
			EnvVars: []string{"ENV", "ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "config-source",
			Usage:   "Where provider configuration is read from: env, ssm, secretsmanager, or file",
			Value:   string(di.ConfigSourceEnv),
			EnvVars: []string{"CONFIG_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "YAML file of configuration keys (with --config-source file)",
			EnvVars: []string{"CONFIG_FILE"},
		},
	}
}

// newContainer builds a container from the global flags plus opts
func newContainer(c *cli.Context, opts ...di.Option) (di.Container, error) {
	opts = append([]di.Option{
		di.WithConfigSource(c.String("config-source")),
		di.WithConfigFile(c.String("config-file")),
	}, opts...)
	return di.New(c.String("env"), opts...)
}
