package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/rediskit/logger"
)

// FileSystem abstracts the file operations of the loader for tests.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem on the local disk.
type RealFileSystem struct{}

func (RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadEnv loads a .env file into the process environment. Variables that
// are already set win.
func (RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver finds the config and env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths. Either may
// be empty.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns the explicit paths from opts, searching the standard
// locations for whichever is missing.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = r.first(configCandidates(serviceName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = r.first(envCandidates(serviceName))
	}
	return resolved
}

func (r *Resolver) first(paths []string) string {
	for _, p := range paths {
		if r.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

// shortName strips an organisation prefix: "acme-rediskit" becomes "rediskit".
func shortName(serviceName string) string {
	if idx := strings.LastIndex(serviceName, "-"); idx != -1 {
		return serviceName[idx+1:]
	}
	return serviceName
}

func configCandidates(serviceName string) []string {
	names := []string{serviceName}
	if s := shortName(serviceName); s != serviceName {
		names = append(names, s)
	}

	var paths []string
	for _, up := range []string{"./", "../", "../../"} {
		for _, name := range names {
			paths = append(paths, fmt.Sprintf("%scmd/%s/config.yml", up, name))
		}
	}
	return append(paths, "./config/config.yml", "../config/config.yml", "./config.yml")
}

func envCandidates(serviceName string) []string {
	var paths []string
	for _, file := range []string{".env." + serviceName, ".env"} {
		for _, dir := range []string{"cmd/" + serviceName, "config", ""} {
			for _, up := range []string{"./", "../", "../../"} {
				if dir == "" {
					paths = append(paths, up+file)
				} else {
					paths = append(paths, up+dir+"/"+file)
				}
			}
		}
	}
	return paths
}

// LoaderConfig holds the loader's dependencies and overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // explicit config file path (optional)
	EnvFile    string // explicit .env file path (optional)
	EnvPrefix  string // only variables named PREFIX_* are bound (optional)
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix binds only environment variables starting with prefix and
// an underscore. The prefix is stripped before matching keys.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = strings.TrimSuffix(strings.ToUpper(prefix), "_") }
}

// LoadConfig loads configuration for a service into cfg, which must be a
// pointer to a struct with mapstructure tags.
//
// Values come from, lowest precedence first: the YAML config file, then
// environment variables (after the .env file has been loaded into the
// environment). REDIS_INSTANCES_DEFAULT_POOL_SIZE sets
// redis.instances.default.pool_size. A variable is bound only to a key the
// config struct or file declares.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = RealFileSystem{}
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", files.ConfigFile, err)
		}
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			logger.Warn("failed to load .env file", logger.Fields(
				"file", files.EnvFile,
				logger.FieldError, err.Error(),
			))
		}
	}

	known := make(map[string]bool)
	for _, k := range v.AllKeys() {
		known[k] = true
	}
	configKeys(v, reflect.TypeOf(cfg), "", known)
	bindEnv(v, lc.EnvPrefix, known)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// configKeys adds the leaf keys of t to out. Map-valued fields contribute
// keys for the entries already present in v.
func configKeys(v *viper.Viper, t reflect.Type, prefix string, out map[string]bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, tagOpts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "-" {
				continue
			}
			if strings.Contains(tagOpts, "squash") {
				configKeys(v, f.Type, prefix, out)
				continue
			}
			if name == "" {
				name = f.Name
			}
			configKeys(v, f.Type, joinKey(prefix, strings.ToLower(name)), out)
		}
	case reflect.Map:
		if prefix == "" || t.Key().Kind() != reflect.String {
			return
		}
		for k := range v.GetStringMap(prefix) {
			configKeys(v, t.Elem(), joinKey(prefix, strings.ToLower(k)), out)
		}
	default:
		if prefix != "" {
			out[prefix] = true
		}
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// bindEnv sets every environment variable whose name is a known key with
// dots replaced by underscores, upper-cased. When two keys share a name the
// first in sorted order wins.
func bindEnv(v *viper.Viper, prefix string, known map[string]bool) {
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	byEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		name := EnvName(k)
		if _, ok := byEnv[name]; !ok {
			byEnv[name] = k
		}
	}

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(name, prefix+"_") {
				continue
			}
			name = strings.TrimPrefix(name, prefix+"_")
		}
		if key, ok := byEnv[strings.ToUpper(name)]; ok {
			v.Set(key, value)
		}
	}
}

// EnvName returns the environment variable name for a config key:
// redis.instances.default.pool_size becomes REDIS_INSTANCES_DEFAULT_POOL_SIZE.
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
