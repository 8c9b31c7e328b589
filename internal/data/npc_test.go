package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakearena/server/internal/npc"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "npc_list.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadNpcTable(t *testing.T) {
	path := writeRoster(t, `
npcs:
  - name: Viper
    difficulty: hard
    profile: hunter
    sliders: {speed: 4, skill: 5, boldness: 5}
  - name: Slowpoke
    difficulty: easy
    profile: forager
    sliders: {speed: 1, skill: 2, boldness: 1}
`)
	table, err := LoadNpcTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Count())

	viper := table.Get("Viper")
	require.NotNil(t, viper)
	assert.Equal(t, "hard", viper.Difficulty)
	assert.Equal(t, "hunter", viper.Profile)
	assert.Equal(t, npc.Sliders{Speed: 4, Skill: 5, Boldness: 5}, viper.Sliders)

	assert.Nil(t, table.Get("nobody"))
	assert.Equal(t, "Slowpoke", table.ByDifficulty("easy").Name)
	assert.Equal(t, "Viper", table.ByDifficulty("medium").Name, "missing difficulty falls back to first entry")

	names := []string{}
	for _, tpl := range table.All() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"Viper", "Slowpoke"}, names, "file order preserved")
}

func TestLoadNpcTableMissingFile(t *testing.T) {
	_, err := LoadNpcTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadNpcTableEmptyRoster(t *testing.T) {
	_, err := LoadNpcTable(writeRoster(t, "npcs: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty roster")
}

func TestLoadNpcTableDuplicateName(t *testing.T) {
	_, err := LoadNpcTable(writeRoster(t, `
npcs:
  - name: Twin
    difficulty: easy
  - name: Twin
    difficulty: hard
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate npc")
}

func TestDefaultNpcTable(t *testing.T) {
	table := DefaultNpcTable()
	assert.Equal(t, 3, table.Count())
	assert.Equal(t, "Bot-Alpha", table.ByDifficulty(npc.DifficultyEasy).Name)
	assert.Equal(t, "Bot-Beta", table.ByDifficulty(npc.DifficultyMedium).Name)
	assert.Equal(t, "Bot-Gamma", table.ByDifficulty(npc.DifficultyHard).Name)
}
