package shim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const configFilename = "config.json"

// Tape options are passed through the container environment rather than
// runtime-specific bundle extensions, so plain `docker run -e` works.
const (
	envCells      = "BTF_CELLS="
	envExtensible = "BTF_EXTENSIBLE="
)

// subset of the OCI bundle config.json the shim cares about
type rootConfig struct {
	// Path is the path to the rootfs
	Path string `json:"path"`
}

type processConfig struct {
	// Args is the command to run
	Args []string `json:"args"`
	// Env is the environment variables to set
	Env []string `json:"env"`
}

type bundleConfig struct {
	Root    rootConfig    `json:"root"`
	Process processConfig `json:"process"`
}

// Config is the resolved runtime configuration of a task: where the rootfs
// is, which program to run, and how the interpreter tape is set up.
type Config struct {
	Root       string
	Entrypoint string
	Cells      int
	Extensible bool
}

// ReadConfig reads and validates the bundle's config.json. The container
// CMD must be a single brainfuck source file; tape options come from the
// BTF_CELLS and BTF_EXTENSIBLE environment variables.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(path, configFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found", configFilename)
		}
		return nil, err
	}

	var config bundleConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if config.Root.Path == "" {
		return nil, fmt.Errorf("root path not found in config file %s", configFilename)
	}

	if len(config.Process.Args) != 1 {
		return nil, fmt.Errorf("incorrect number of args in the CMD. Expected 1, got %d", len(config.Process.Args))
	}

	arg0 := config.Process.Args[0]
	switch filepath.Ext(arg0) {
	case ".bf", ".b", ".brainfuck":
	default:
		return nil, fmt.Errorf("entry point (%s) is not a .bf file", arg0)
	}

	c := &Config{
		Root:       config.Root.Path,
		Entrypoint: arg0,
	}

	for _, env := range config.Process.Env {
		if v, ok := strings.CutPrefix(env, envCells); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid %s value %q", strings.TrimSuffix(envCells, "="), v)
			}
			c.Cells = n
		}
		if v, ok := strings.CutPrefix(env, envExtensible); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", strings.TrimSuffix(envExtensible, "="), v)
			}
			c.Extensible = b
		}
	}

	return c, nil
}

// FullPath returns the path of the entry point inside the rootfs.
func (c *Config) FullPath() string {
	return filepath.Join(c.Root, c.Entrypoint)
}

// InterpreterArgs builds the argv (after the executable itself) that
// re-runs the shim binary as the interpreter for the configured program.
func (c *Config) InterpreterArgs() []string {
	args := []string{"bft", "-file", c.FullPath()}
	if c.Cells > 0 {
		args = append(args, "-cells", strconv.Itoa(c.Cells))
	}
	if c.Extensible {
		args = append(args, "-extensible")
	}
	return args
}
