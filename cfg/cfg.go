// SPDX-License-Identifier: ice License 1.0

package cfg

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ice-blockchain/filemeta/logger"
)

const (
	defaultYAMLConfigurationFilePath = "/etc/filemeta/filemeta.yaml"
	modulePath                       = "github.com/ice-blockchain/filemeta/"
	envPrefix                        = "FILEMETA"
)

var (
	yamlConfigurationFilePathInitializer = new(sync.Once)
	yamlConfigurationFilePath            string

	validate = validator.New(validator.WithRequiredStructEnabled())
	log      = logger.Get("Config")
)

func MustInit(absoluteCfgPaths ...string) {
	yamlConfigurationFilePathInitializer.Do(func() { mustInit(absoluteCfgPaths...) })
}

func mustInit(absoluteCfgPaths ...string) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "/", "_"))
	viper.AutomaticEnv()
	yamlConfigurationFilePath = ""
	for _, path := range absoluteCfgPaths {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err == nil {
			yamlConfigurationFilePath = path

			break
		}
	}
	if yamlConfigurationFilePath == "" {
		if len(absoluteCfgPaths) > 0 {
			log.Emit(logger.WARNING, "Could not find any of the provided file paths %+v, defaulting to `%v`", absoluteCfgPaths, defaultYAMLConfigurationFilePath)
		}
		yamlConfigurationFilePath = defaultYAMLConfigurationFilePath
	}
}

// Key is the yaml key configuration of type T lives under: T's package path relative to the module.
func Key[T any]() string {
	var t T

	return strings.Replace(reflect.TypeOf(t).PkgPath(), modulePath, "", 1)
}

func Get[T any]() (*T, error) {
	var t T
	key := Key[T]()
	if err := viper.UnmarshalKey(key, &t); err != nil {
		return nil, errors.Wrapf(err, "could not deserialised `%v` yaml key `%v` into %+v", yamlConfigurationFilePath, key, t)
	}
	if reflect.TypeOf(t).Kind() == reflect.Struct {
		if err := validate.Struct(&t); err != nil {
			return nil, errors.Wrapf(err, "invalid `%v` yaml key `%v`", yamlConfigurationFilePath, key)
		}
	}

	return &t, nil
}

func MustGet[T any]() *T {
	t, err := Get[T]()
	if err != nil {
		log.Emit(logger.FATAL, "%v", err)
		panic(err)
	}

	return t
}

// Validate checks the `validate` tags of a configuration built outside of viper.
func Validate(c any) error {
	return errors.Wrap(validate.Struct(c), "invalid configuration")
}
