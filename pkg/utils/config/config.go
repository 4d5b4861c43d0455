// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"saturn.io/saturn/pkg/log"
)

// EnvPrefix is prepended to every environment variable derived from a flag name.
const EnvPrefix = "SATURN_"

// Parse loads configuration into the flags registered on fs.
//
// Sources in ascending priority: flag defaults, config file, environment, command line.
// A flag "database-addr" maps to the file key "database.addr" and the env var "SATURN_DATABASE_ADDR".
func Parse(fs *pflag.FlagSet) error {
	LoadConfigFile(fs)
	LoadEnv(fs)
	if err := fs.Parse(os.Args); err != nil {
		return err
	}
	Print(fs)
	return nil
}

func Print(fs *pflag.FlagSet) {
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			log.Infof("config from flag: --%s=%s", flag.Name, redact(flag.Name, flag.Value.String()))
		}
	})
}

func FlagNameToEnvKey(fname string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(fname, "-", "_"))
}

func FlagNameToConfigKey(fname string) string {
	return strings.ToLower(strings.ReplaceAll(fname, "-", "."))
}

func LoadEnv(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		envname := FlagNameToEnvKey(f.Name)
		val, ok := os.LookupEnv(envname)
		if ok {
			log.Infof("config from env: %s=%s", envname, redact(f.Name, val))
			_ = f.Value.Set(val)
		}
	})
}

func LoadConfigFile(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/etc/saturn")
	if err := v.ReadInConfig(); err != nil {
		log.Warnf("no config file found")
		return
	}
	loadFromViper(v, fs)
}

func loadFromViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		filekeyname := FlagNameToConfigKey(f.Name)
		val := v.GetString(filekeyname)
		if val != "" {
			log.Infof("config from file: %s=%s", filekeyname, redact(f.Name, val))
			_ = f.Value.Set(val)
		}
	})
}

func redact(name, val string) string {
	lower := strings.ToLower(name)
	for _, s := range []string{"password", "secret", "key", "token"} {
		if strings.Contains(lower, s) && val != "" {
			return "******"
		}
	}
	return val
}
