// Package script provides the optional Lua hooks of §4.4.4: a moddable
// annotation layer over static level objects, adapted from the teacher's
// ScriptEngine (script_engine.go) which ran Tiled "interact" object scripts
// through a pooled gopher-lua state. Scripts here cannot touch player,
// vehicle, ghost, or physics state — only the small object-property map
// attached to the static object they're bound to.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
	lua "github.com/yuin/gopher-lua"
)

// Effect is whatever a script asked the engine to do; today the only
// effect is an acknowledgement string surfaced to the interacting player.
type Effect struct {
	AckMessage string
}

// ObjectState is the mutable property bag a script may read and write for
// the static object it ran against.
type ObjectState struct {
	Index int
	Props map[string]interface{}
}

type Engine struct {
	logger  runtime.Logger
	baseDir string
	pool    sync.Pool
}

func NewEngine(logger runtime.Logger, baseDir string) *Engine {
	return &Engine{
		logger:  logger,
		baseDir: baseDir,
		pool: sync.Pool{
			New: func() any {
				return lua.NewState(lua.Options{SkipOpenLibs: false})
			},
		},
	}
}

// Execute runs scriptPath with params exposed as the Lua global "ctx", and
// obj's property map exposed for set_object_prop mutation. It mirrors the
// teacher's Execute but drops map-tile-collider rebuilding (set_object_gid,
// add_object_collider): this engine cannot create colliders, only annotate.
func (e *Engine) Execute(scriptPath string, params map[string]interface{}, obj *ObjectState) ([]Effect, error) {
	L := e.pool.Get().(*lua.LState)
	defer func() {
		L.Close()
	}()

	effects := make([]Effect, 0, 2)

	L.SetGlobal("effect_ack", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		effects = append(effects, Effect{AckMessage: msg})
		return 0
	}))

	L.SetGlobal("set_object_prop", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		val := L.CheckAny(2)
		if obj == nil {
			return 0
		}
		if obj.Props == nil {
			obj.Props = make(map[string]interface{})
		}
		obj.Props[key] = goValue(val)
		return 0
	}))

	ctxTbl := L.NewTable()
	for k, v := range params {
		L.SetField(ctxTbl, k, toLValue(L, v))
	}
	L.SetGlobal("ctx", ctxTbl)

	abs := filepath.Join(e.baseDir, scriptPath)
	if _, err := os.Stat(abs); err != nil {
		e.logger.Error("script file not found: %s", scriptPath)
		return effects, err
	}
	if err := L.DoFile(abs); err != nil {
		e.logger.Error("error executing script %s: %v", scriptPath, err)
		return effects, err
	}
	return effects, nil
}

func goValue(v lua.LValue) interface{} {
	switch vv := v.(type) {
	case lua.LBool:
		return bool(vv)
	case lua.LNumber:
		return float64(vv)
	case lua.LString:
		return string(vv)
	default:
		return v.String()
	}
}

func toLValue(L *lua.LState, v interface{}) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}
