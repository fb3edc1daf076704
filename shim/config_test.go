package shim_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rkhudov/btf/shim"
	"github.com/rkhudov/btf/utils"
)

func writeBundle(t *testing.T, config string) string {
	t.Helper()
	bundle := t.TempDir()
	err := os.WriteFile(filepath.Join(bundle, "config.json"), []byte(config), 0644)
	utils.AssertNoError(t, err)
	return bundle
}

func TestReadConfig(t *testing.T) {
	bundle := writeBundle(t, `{
		"root": {"path": "/rootfs"},
		"process": {"args": ["hello.bf"], "env": ["PATH=/bin"]}
	}`)

	config, err := shim.ReadConfig(bundle)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, config.Root, "/rootfs")
	utils.AssertEqual(t, config.Entrypoint, "hello.bf")
	utils.AssertEqual(t, config.Cells, 0)
	utils.AssertEqual(t, config.Extensible, false)
	utils.AssertEqual(t, config.FullPath(), "/rootfs/hello.bf")
}

func TestReadConfig_TapeOptions(t *testing.T) {
	bundle := writeBundle(t, `{
		"root": {"path": "/rootfs"},
		"process": {"args": ["hello.bf"], "env": ["BTF_CELLS=5000", "BTF_EXTENSIBLE=true"]}
	}`)

	config, err := shim.ReadConfig(bundle)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, config.Cells, 5000)
	utils.AssertEqual(t, config.Extensible, true)
}

func TestReadConfig_InvalidCells(t *testing.T) {
	bundle := writeBundle(t, `{
		"root": {"path": "/rootfs"},
		"process": {"args": ["hello.bf"], "env": ["BTF_CELLS=nope"]}
	}`)

	_, err := shim.ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := shim.ReadConfig(t.TempDir())
	utils.AssertError(t, err)
}

func TestReadConfig_MissingRoot(t *testing.T) {
	bundle := writeBundle(t, `{"process": {"args": ["hello.bf"]}}`)
	_, err := shim.ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_TooManyArgs(t *testing.T) {
	bundle := writeBundle(t, `{
		"root": {"path": "/rootfs"},
		"process": {"args": ["hello.bf", "extra"]}
	}`)
	_, err := shim.ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_NotABrainfuckFile(t *testing.T) {
	bundle := writeBundle(t, `{
		"root": {"path": "/rootfs"},
		"process": {"args": ["hello.sh"]}
	}`)
	_, err := shim.ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestConfig_InterpreterArgs(t *testing.T) {
	config := &shim.Config{Root: "/rootfs", Entrypoint: "hello.bf"}
	utils.AssertEqualArrays(t, config.InterpreterArgs(), []string{"bft", "-file", "/rootfs/hello.bf"})

	config.Cells = 100
	config.Extensible = true
	utils.AssertEqualArrays(t, config.InterpreterArgs(), []string{
		"bft", "-file", "/rootfs/hello.bf", "-cells", "100", "-extensible",
	})
}
