package engine

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

const handlersKey = "tabletop.handlers"

// Globals a script must never reach. Together with the reduced library set
// they keep scripts off the filesystem.
var removedGlobals = []string{"dofile", "loadfile", "load", "require", "collectgarbage"}

var openers = []struct {
	name string
	open lua.Function
}{
	{"_G", lua.BaseOpen},
	{"string", lua.StringOpen},
	{"table", lua.TableOpen},
	{"math", lua.MathOpen},
}

// Lua is an Engine backed by an embedded Lua 5.2 interpreter.
//
// Scripts use two globals:
//
//	on(name, fn)  registers fn as the handler of event name
//	finish()      marks the game as over
//
// A handler receives the event payload as a table and returns either nil,
// one descriptor table, or an array of them.
type Lua struct {
	l        *lua.State
	state    State
	loaded   bool
	finished bool
}

func NewLua() *Lua {
	e := &Lua{l: lua.NewState()}
	e.sandbox()
	return e
}

// NewLuaFactory is the Factory used by the server.
func NewLuaFactory() Factory {
	return func() Engine { return NewLua() }
}

func (e *Lua) sandbox() {
	l := e.l
	for _, o := range openers {
		lua.Require(l, o.name, o.open, true)
		l.Pop(1)
	}
	for _, name := range removedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.NewTable()
	l.SetField(lua.RegistryIndex, handlersKey)

	l.Register("on", e.on)
	l.Register("finish", e.finish)
}

func (e *Lua) on(l *lua.State) int {
	name := lua.CheckString(l, 1)
	lua.CheckType(l, 2, lua.TypeFunction)

	l.Field(lua.RegistryIndex, handlersKey)
	l.PushValue(2)
	l.SetField(-2, name)
	l.Pop(1)
	return 0
}

func (e *Lua) finish(l *lua.State) int {
	e.finished = true
	return 0
}

func (e *Lua) LoadScript(src []byte) error {
	if e.state != NotStarted || e.loaded {
		return fmt.Errorf("%w: script already loaded", ErrInvalidState)
	}
	if err := lua.LoadBuffer(e.l, string(src), "=main", "t"); err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	e.loaded = true
	return nil
}

func (e *Lua) Run() error {
	if !e.loaded {
		return ErrNotLoaded
	}
	if e.state != NotStarted {
		return fmt.Errorf("%w: run while %s", ErrInvalidState, e.state)
	}
	if err := e.l.ProtectedCall(0, 0, 0); err != nil {
		e.loaded = false
		return fmt.Errorf("run script: %w", err)
	}
	e.settle()
	return nil
}

func (e *Lua) State() State {
	return e.state
}

func (e *Lua) settle() {
	if e.finished {
		e.state = Finished
	} else {
		e.state = Paused
	}
}

func (e *Lua) RaiseEvent(name string, payload map[string]any) ([]any, error) {
	if e.state != Paused {
		return nil, fmt.Errorf("%w: event %q while %s", ErrInvalidState, name, e.state)
	}

	l := e.l
	top := l.Top()
	defer l.SetTop(top)
	defer e.settle()

	l.Field(lua.RegistryIndex, handlersKey)
	l.Field(-1, name)
	if !l.IsFunction(-1) {
		return nil, nil
	}

	pushValue(l, payload)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("event %q: %w", name, err)
	}
	return results(l, -1)
}

func (e *Lua) Close() {
	e.state = Finished
}

// results normalises a handler's return value into a descriptor list.
func results(l *lua.State, index int) ([]any, error) {
	switch l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil, nil
	case lua.TypeTable:
		switch v := tableToGo(l, index).(type) {
		case []any:
			return v, nil
		case map[string]any:
			return []any{v}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBadResult, lua.TypeNameOf(l, index))
}
