package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for NPC tuning logic. Rooms derive
// tuning concurrently at start, so calls are serialized by a mutex.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. Missing directories are skipped so the server runs with
// built-in defaults when no scripts are deployed.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(filepath.Join(scriptsDir, "npc")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load npc scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// TuningContext is the input to the Lua npc_tuning function.
type TuningContext struct {
	Profile    string
	Difficulty string
	Speed      int // slider 1..5
	Skill      int // slider 1..5
	Boldness   int // slider 1..5
}

// TuningResult mirrors the table returned by npc_tuning.
type TuningResult struct {
	ReactionMs   int
	SuccessRate  float64
	LookAhead    int
	Aggression   float64
	Caution      float64
	BiasFood     float64
	BiasHunt     float64
	BiasSurvival float64
}

// NpcTuning calls the Lua npc_tuning function. The second return is
// false when the script is not loaded or fails; callers fall back to the
// built-in derivation.
func (e *Engine) NpcTuning(ctx TuningContext) (TuningResult, bool) {
	if e == nil {
		return TuningResult{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("npc_tuning")
	if fn == lua.LNil {
		return TuningResult{}, false
	}

	t := e.vm.NewTable()
	t.RawSetString("profile", lua.LString(ctx.Profile))
	t.RawSetString("difficulty", lua.LString(ctx.Difficulty))
	t.RawSetString("speed", lua.LNumber(ctx.Speed))
	t.RawSetString("skill", lua.LNumber(ctx.Skill))
	t.RawSetString("boldness", lua.LNumber(ctx.Boldness))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua npc_tuning error", zap.Error(err))
		return TuningResult{}, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua npc_tuning returned non-table")
		return TuningResult{}, false
	}

	num := func(key string) float64 {
		return float64(lua.LVAsNumber(rt.RawGetString(key)))
	}
	return TuningResult{
		ReactionMs:   int(num("reaction_ms")),
		SuccessRate:  num("success_rate"),
		LookAhead:    int(num("look_ahead")),
		Aggression:   num("aggression"),
		Caution:      num("caution"),
		BiasFood:     num("bias_food"),
		BiasHunt:     num("bias_hunt"),
		BiasSurvival: num("bias_survival"),
	}, true
}
