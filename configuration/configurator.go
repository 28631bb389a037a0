// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package configuration

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	ConfigName     = "reconciler"
	ConfigType     = "yaml"
	ConfigFilePath = ConfigName + "." + ConfigType
)

func Load(log *logrus.Logger) *Configuration {
	printWorkingDir(log)
	actual := load(log)
	printConfig(log, actual)
	return actual
}

func load(log *logrus.Logger) *Configuration {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("reconciler")

	v.SetConfigName(ConfigName)
	v.SetConfigType(ConfigType)
	v.AddConfigPath(".")
	v.AddConfigPath(".artifacts")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warnf("config file not found (file=%v). Default configuration is used", ConfigFilePath)
		} else {
			log.Error(errors.Wrapf(err, "failed to load config. Default configuration is used"))
		}
		return Default()
	}

	actual := &Configuration{}
	err := v.Unmarshal(actual)
	if err != nil {
		log.Error(errors.Wrapf(err, "failed to unmarshal config file into configuration structure. Default configuration is used"))
		return Default()
	}

	return actual
}

func printWorkingDir(log *logrus.Logger) {
	wd, _ := os.Getwd()
	log.Infof("Working dir: %s", wd)
}

func printConfig(log *logrus.Logger, c *Configuration) {
	cc, err := cleanSecrets(c)
	if err != nil {
		log.Error(err)
		return
	}
	out, err := yaml.Marshal(cc)
	if err != nil {
		log.Error(errors.Wrapf(err, "failed to marshal config structure"))
		return
	}
	log.Infof("Loaded configuration:\n%s", string(out))
}

func cleanSecrets(c *Configuration) (*Configuration, error) {
	const stars = "***"
	cc := *c
	dbURL := cc.DB.URL
	re := regexp.MustCompile(`^(?P<driver>.*)//(?P<user>.*):(?P<password>.*)@(?P<rest>.*)$`)
	if re.MatchString(dbURL) {
		result := re.ReplaceAllString(dbURL, "$1//$2:"+stars+"@$4")
		cc.DB.URL = result
	} else {
		re = regexp.MustCompile(`^(?P<driver>.*)//(?P<rest>.*)$`)
		if !re.MatchString(dbURL) {
			return nil, errors.New("failed to parse db url")
		}
	}
	return &cc, nil
}
