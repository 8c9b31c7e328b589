package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snakearena/server/internal/npc"
)

// NpcTemplate holds static data for one roster NPC loaded from YAML.
type NpcTemplate struct {
	Name       string      `yaml:"name"`
	Difficulty string      `yaml:"difficulty"`
	Profile    string      `yaml:"profile"`
	Sliders    npc.Sliders `yaml:"sliders"`
}

type npcListFile struct {
	Npcs []NpcTemplate `yaml:"npcs"`
}

// NpcTable holds the single-player roster in file order.
type NpcTable struct {
	templates []NpcTemplate
	byName    map[string]*NpcTemplate
}

// LoadNpcTable loads the NPC roster from a YAML file.
func LoadNpcTable(path string) (*NpcTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read npc_list: %w", err)
	}
	var f npcListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse npc_list: %w", err)
	}
	if len(f.Npcs) == 0 {
		return nil, fmt.Errorf("npc_list %s: empty roster", path)
	}
	t := &NpcTable{
		templates: f.Npcs,
		byName:    make(map[string]*NpcTemplate, len(f.Npcs)),
	}
	for i := range t.templates {
		tpl := &t.templates[i]
		if _, dup := t.byName[tpl.Name]; dup {
			return nil, fmt.Errorf("npc_list %s: duplicate npc %q", path, tpl.Name)
		}
		t.byName[tpl.Name] = tpl
	}
	return t, nil
}

// DefaultNpcTable is the built-in roster used when no YAML file is
// deployed next to the binary.
func DefaultNpcTable() *NpcTable {
	tpls := []NpcTemplate{
		{Name: "Bot-Alpha", Difficulty: npc.DifficultyEasy, Profile: npc.ProfileBalanced, Sliders: npc.Sliders{Speed: 3, Skill: 3, Boldness: 3}},
		{Name: "Bot-Beta", Difficulty: npc.DifficultyMedium, Profile: npc.ProfileBalanced, Sliders: npc.Sliders{Speed: 3, Skill: 3, Boldness: 3}},
		{Name: "Bot-Gamma", Difficulty: npc.DifficultyHard, Profile: npc.ProfileBalanced, Sliders: npc.Sliders{Speed: 3, Skill: 3, Boldness: 3}},
	}
	t := &NpcTable{templates: tpls, byName: make(map[string]*NpcTemplate, len(tpls))}
	for i := range t.templates {
		t.byName[t.templates[i].Name] = &t.templates[i]
	}
	return t
}

// Get returns the template for an NPC by roster name.
func (t *NpcTable) Get(name string) *NpcTemplate {
	return t.byName[name]
}

// ByDifficulty returns the first roster entry with the given difficulty,
// falling back to the first entry.
func (t *NpcTable) ByDifficulty(difficulty string) *NpcTemplate {
	for i := range t.templates {
		if t.templates[i].Difficulty == difficulty {
			return &t.templates[i]
		}
	}
	return &t.templates[0]
}

// All returns the roster in file order.
func (t *NpcTable) All() []NpcTemplate {
	return t.templates
}

// Count returns the number of loaded NPC templates.
func (t *NpcTable) Count() int {
	return len(t.templates)
}
