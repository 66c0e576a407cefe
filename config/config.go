// Package config loads the server configuration.
//
// Sources, lowest to highest precedence:
//
//	struct `default` tags → YAML file (--config / CMDSERVER_CONFIG) → CMDSERVER_* env → flags
//
// Env names are the mapstructure path in upper case with dots replaced by underscores,
// e.g. server.read_timeout is CMDSERVER_SERVER_READ_TIMEOUT. A .env file in the working
// directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/code19m/errx"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mini-cmd/admin"
	"mini-cmd/logger"
	"mini-cmd/metrics"
	"mini-cmd/registry"
	"mini-cmd/server"
	"mini-cmd/tracing"
)

const envPrefix = "CMDSERVER"

// Config is the complete server configuration.
type Config struct {
	Server   server.Config   `mapstructure:"server"`
	Log      logger.Config   `mapstructure:"log"`
	Registry registry.Config `mapstructure:"registry"`
	Admin    admin.Config    `mapstructure:"admin"`
	Tracing  tracing.Config  `mapstructure:"tracing"`
	Metrics  metrics.Config  `mapstructure:"metrics"`
}

// flag name → config key
var flagKeys = map[string]string{ //nolint: gochecknoglobals // static table
	"addr":       "server.addr",
	"log-file":   "log.file",
	"admin-addr": "admin.addr",
	"etcd":       "registry.endpoints",
}

// Load builds the configuration from defaults, an optional YAML file, the environment
// and the command-line args (without the program name).
// It returns pflag.ErrHelp unwrapped when args ask for help.
func Load(name string, args []string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, errx.Wrap(err, errx.WithCode(CodeInvalidConfig))
	}

	v := viper.New()
	registerDefaults(v, "", reflect.ValueOf(cfg))

	fs := newFlagSet(name)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Config{}, pflag.ErrHelp
		}
		return Config{}, errx.Wrap(err, errx.WithCode(CodeInvalidFlags), errx.WithType(errx.T_Validation))
	}
	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return Config{}, errx.Wrap(err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, fs); err != nil {
		return Config{}, err
	}

	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("log.level", "debug")
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errx.Wrap(err, errx.WithCode(CodeInvalidConfig), errx.WithType(errx.T_Validation))
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("addr", "", "address to listen on (default localhost:7878)")
	fs.Bool("debug", false, "log at debug level")
	fs.String("log-file", "", "write logs to this file instead of stdout")
	fs.String("config", "", "YAML config file")
	fs.String("admin-addr", "", "address of the HTTP admin surface (disabled when empty)")
	fs.StringSlice("etcd", nil, "etcd endpoints to register with")
	fs.SortFlags = false
	return fs
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	path, _ := fs.GetString("config")
	if path == "" {
		path = v.GetString("config")
	}
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errx.Wrap(err, errx.WithCode(CodeConfigFile), errx.WithDetails(errx.D{"path": path}))
	}
	return nil
}

// registerDefaults makes every config key known to viper so that env variables
// are picked up by Unmarshal even when no file or flag sets the key.
func registerDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

func validate(cfg Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return errx.Wrap(err, errx.WithCode(CodeInvalidConfig))
	}

	failed := make([]string, 0, len(errs))
	for _, fe := range errs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		failed = append(failed, fmt.Sprintf("%s: %s", fe.Namespace(), tag))
	}
	return errx.New("invalid configuration: "+strings.Join(failed, ", "),
		errx.WithCode(CodeInvalidConfig),
		errx.WithType(errx.T_Validation),
	)
}
