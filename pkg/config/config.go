// Copyright 2025 The fawa Authors
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
// Package config loads the service configuration from flags, a yaml file
// and TTSCACHE_ environment variables, and reloads it when the file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/ttscache/pkg/fwlog"
	"github.com/fawa-io/ttscache/pkg/objstore"
)

const envPrefix = "TTSCACHE"

// Probe modes for storage.probe.
const (
	ProbeCDN    = "cdn"
	ProbeBucket = "bucket"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	LogLevel string `mapstructure:"logLevel"`

	Storage StorageConfig `mapstructure:"storage"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	NATS    NATSConfig    `mapstructure:"nats"`
}

type StorageConfig struct {
	Endpoint             string `mapstructure:"endpoint"`
	Bucket               string `mapstructure:"bucket"`
	AccessKeyID          string `mapstructure:"accessKeyId"`
	SecretKey            string `mapstructure:"secretKey"`
	Region               string `mapstructure:"region"`
	UseSSL               bool   `mapstructure:"useSSL"`
	PathStyle            bool   `mapstructure:"pathStyle"`
	CDNHost              string `mapstructure:"cdnHost"`
	PresignExpirySeconds int    `mapstructure:"presignExpirySeconds"`
	SignContentType      bool   `mapstructure:"signContentType"`
	Probe                string `mapstructure:"probe"`
}

type TTSConfig struct {
	Endpoint           string `mapstructure:"endpoint"`
	APIKey             string `mapstructure:"apiKey"`
	DefaultVoice       string `mapstructure:"defaultVoice"`
	OutputFormat       string `mapstructure:"outputFormat"`
	TimeoutSeconds     int    `mapstructure:"timeoutSeconds"`
	InlineMaxBytes     int    `mapstructure:"inlineMaxBytes"`
	MaxTextLength      int    `mapstructure:"maxTextLength"`
	RevalidatePointers bool   `mapstructure:"revalidatePointers"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

type CacheConfig struct {
	MemorySize int `mapstructure:"memorySize"`
}

// NATSConfig enables the queue worker when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

var defaults = map[string]any{
	"addr":     ":8080",
	"certFile": "",
	"keyFile":  "",
	"logLevel": "info",

	"storage.endpoint":             "",
	"storage.bucket":               "",
	"storage.accessKeyId":          "",
	"storage.secretKey":            "",
	"storage.region":               "",
	"storage.useSSL":               true,
	"storage.pathStyle":            false,
	"storage.cdnHost":              "",
	"storage.presignExpirySeconds": 300,
	"storage.signContentType":      false,
	"storage.probe":                ProbeCDN,

	"tts.endpoint":           "",
	"tts.apiKey":             "",
	"tts.defaultVoice":       "en-US-JennyNeural",
	"tts.outputFormat":       "audio-24khz-48kbitrate-mono-mp3",
	"tts.timeoutSeconds":     30,
	"tts.inlineMaxBytes":     4 << 20,
	"tts.maxTextLength":      5000,
	"tts.revalidatePointers": false,

	"redis.addr":      "",
	"redis.password":  "",
	"redis.db":        0,
	"redis.keyPrefix": "ttscache:pointer:",

	"cache.memorySize": 4096,

	"nats.url":     "",
	"nats.subject": "tts.resolve",
	"nats.queue":   "ttscache",
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config
)

// setup applies defaults and the environment binding to v. Every key has a
// default so AutomaticEnv can see it during Unmarshal.
func setup(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Decode unmarshals v into a Config and checks the enumerated fields.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	c.Storage.Probe = strings.ToLower(strings.TrimSpace(c.Storage.Probe))
	switch c.Storage.Probe {
	case ProbeCDN, ProbeBucket:
	default:
		return Config{}, fmt.Errorf("invalid storage.probe %q: want %q or %q", c.Storage.Probe, ProbeCDN, ProbeBucket)
	}
	if _, err := fwlog.ParseLevel(c.LogLevel); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads file (when non-empty) on top of the defaults and environment.
func Load(file string) (Config, error) {
	v := viper.New()
	setup(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return Decode(v)
}

func InitConfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

func set(c Config) {
	mu.Lock()
	config = c
	mu.Unlock()
	if lv, err := fwlog.ParseLevel(c.LogLevel); err == nil {
		fwlog.SetLevel(lv)
	}
}

func LoadAndWatch() error {
	pflag.String("addr", "", "HTTP listen address (e.g., ':8080')")
	pflag.String("certFile", "", "Path to the TLS certificate file.")
	pflag.String("keyFile", "", "Path to the TLS private key file.")
	pflag.String("logLevel", "", "Log level: debug, info, warn, error.")
	pflag.Parse()

	v := viper.GetViper()
	setup(v)

	// Only flags the user set override file and env values.
	var bindErr error
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind pflags: %w", bindErr)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ttscache/")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using defaults and environment.")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	c, err := Decode(v)
	if err != nil {
		return err
	}
	set(c)

	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("Config file changed: %s, reloading...", e.Name)

		c, err := Decode(v)
		if err != nil {
			fwlog.Errorf("Error reloading the configuration: %v", err)
			return
		}
		set(c)
		fwlog.Infof("The configuration has been successfully reloaded.")
	})
	v.WatchConfig()

	return nil
}

// StorageCredentials converts the storage section. An endpoint written as a
// URL decides TLS by its scheme; a bare host uses storage.useSSL.
func (c Config) StorageCredentials() (objstore.Credentials, error) {
	host, secure, err := objstore.ParseEndpoint(c.Storage.Endpoint)
	if err != nil {
		return objstore.Credentials{}, err
	}
	if !strings.Contains(c.Storage.Endpoint, "://") {
		secure = c.Storage.UseSSL
	}
	return objstore.Credentials{
		Endpoint:    host,
		Bucket:      strings.TrimSpace(c.Storage.Bucket),
		AccessKeyID: c.Storage.AccessKeyID,
		SecretKey:   c.Storage.SecretKey,
		Region:      strings.TrimSpace(c.Storage.Region),
		UseSSL:      secure,
		PathStyle:   c.Storage.PathStyle,
	}, nil
}

// PresignExpiry returns storage.presignExpirySeconds as a duration.
func (c Config) PresignExpiry() time.Duration {
	return time.Duration(c.Storage.PresignExpirySeconds) * time.Second
}

// TTSTimeout returns tts.timeoutSeconds as a duration.
func (c Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}
