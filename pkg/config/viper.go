// Package config loads layered configuration: a .env file, a YAML file
// and environment variables, with hot reload of the YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// searchPaths are tried after the caller's directory.
var searchPaths = []string{".", "./config"}

// Load reads <name>.yaml from dir or the default search paths. Variables
// in a .env file are exported first without overriding the real
// environment. A missing YAML file is not an error; defaults and
// environment variables then carry the whole configuration.
func Load(dir, name string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range append([]string{dir}, searchPaths...) {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	var missing viper.ConfigFileNotFoundError
	switch {
	case err == nil, errors.As(err, &missing):
		return v, nil
	default:
		return nil, fmt.Errorf("read %s config: %w", name, err)
	}
}

// Watch calls onChange after each write to the loaded file. It reports
// false, and does nothing, when Load found no file.
func Watch(v *viper.Viper, onChange func(*viper.Viper, fsnotify.Event)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			onChange(v, e)
		}
	})
	v.WatchConfig()
	return true
}
