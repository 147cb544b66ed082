package lattice_test

import (
	"os"
	"path/filepath"
	"testing"

	"pkg.world.dev/lattice"
	"pkg.world.dev/lattice/assert"
)

func TestDefaultConfig(t *testing.T) {
	c := lattice.DefaultConfig()
	assert.Equal(t, 0, c.NumWorkers)
	assert.Equal(t, 1024, c.EntityCapacity)
	assert.Check(t, c.DynamicCapacity)
	assert.Check(t, !c.DisallowInnerParallelism)
	assert.NilError(t, c.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LATTICE_NUM_WORKERS", "3")
	t.Setenv("LATTICE_ENTITY_CAPACITY", "77")

	c, err := lattice.LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, 3, c.NumWorkers)
	assert.Equal(t, 77, c.EntityCapacity)
}

func TestLoadConfigFromTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.toml")
	assert.NilError(t, os.WriteFile(path, []byte(
		"num_workers = 5\nentity_capacity = 99\ndynamic_capacity = false\n",
	), 0o600))
	t.Setenv(lattice.ConfigFileEnvVar, path)

	c, err := lattice.LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, 5, c.NumWorkers)
	assert.Equal(t, 99, c.EntityCapacity)
	assert.Check(t, !c.DynamicCapacity)
}

func TestEnvOverridesTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.toml")
	assert.NilError(t, os.WriteFile(path, []byte("num_workers = 5\n"), 0o600))
	t.Setenv(lattice.ConfigFileEnvVar, path)
	t.Setenv("LATTICE_NUM_WORKERS", "9")

	c, err := lattice.LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, 9, c.NumWorkers)
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	t.Setenv(lattice.ConfigFileEnvVar, filepath.Join(t.TempDir(), "nope.toml"))
	_, err := lattice.LoadConfig()
	assert.ErrorContains(t, err, "nope.toml")
}

func TestConfigValidation(t *testing.T) {
	c := lattice.DefaultConfig()
	c.EntityCapacity = 0
	assert.ErrorIs(t, c.Validate(), lattice.ErrConfiguration)

	c = lattice.DefaultConfig()
	c.NumWorkers = -1
	assert.ErrorIs(t, c.Validate(), lattice.ErrConfiguration)
}
