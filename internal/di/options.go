package di

// ConfigSource names the ParameterStore implementation: env, ssm, secretsmanager or file
type ConfigSource string

const (
	ConfigSourceEnv            ConfigSource = "env"
	ConfigSourceSSM            ConfigSource = "ssm"
	ConfigSourceSecretsManager ConfigSource = "secretsmanager"
	ConfigSourceFile           ConfigSource = "file"
)

// ConfigFile is the YAML file read when ConfigSource is file
type ConfigFile string

// APIKeyFlags holds API keys passed on the command line
type APIKeyFlags []string

// APIKeySecret names a Secrets Manager secret holding rotated API key versions
type APIKeySecret string

// Option is a function that configures the dependency injection container.
type Option func(*options)

func WithConfigSource(source string) Option {
	return func(opts *options) {
		opts.configSource = ConfigSource(source)
	}
}

func WithConfigFile(path string) Option {
	return func(opts *options) {
		opts.configFile = ConfigFile(path)
	}
}

func WithAPIKeys(keys ...string) Option {
	return func(opts *options) {
		opts.apiKeys = append(opts.apiKeys, keys...)
	}
}

func WithAPIKeySecret(name string) Option {
	return func(opts *options) {
		opts.apiKeySecret = APIKeySecret(name)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *Database { return &Database{} },
//	    func(db *Database) *Service { return &Service{DB: db} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	configSource ConfigSource
	configFile   ConfigFile
	apiKeys      APIKeyFlags
	apiKeySecret APIKeySecret
	providers    []any
}
