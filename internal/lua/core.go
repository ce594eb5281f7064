package lua

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// openCore builds the @luma module: _VERSION, the store binding, the
// front-end request and response, and read_unicode over the input cursor.
func (s *session) openCore(L *lua.LState) lua.LValue {
	ud := L.NewUserData()
	ud.Value = s
	mt := L.CreateTable(0, 2)
	mt.RawSetString("__index", L.NewFunction(s.coreIndex))
	mt.RawSetString("__newindex", L.NewFunction(s.coreNewIndex))
	L.SetMetatable(ud, mt)
	return ud
}

func (s *session) coreIndex(L *lua.LState) int {
	switch key := L.CheckString(2); key {
	case "_VERSION":
		L.Push(lua.LString(Version))
	case "store":
		L.Push(s.storeBinding(L))
	case "request":
		L.Push(goToLua(L, s.state.Request))
	case "response":
		L.Push(goToLua(L, s.state.Response))
	case "read_unicode":
		L.Push(L.NewFunction(s.coreReadUnicode))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// coreNewIndex accepts response assignments; every other field is read only.
func (s *session) coreNewIndex(L *lua.LState) int {
	key := L.CheckString(2)
	if key != "response" {
		L.RaiseError("field '%s' is not assignable", key)
		return 0
	}
	s.state.Response = luaToGo(L.Get(3))
	return 0
}

// coreReadUnicode is the read_unicode method: character-counted reads from
// the same cursor io.read consumes.
func (s *session) coreReadUnicode(L *lua.LState) int {
	L.Push(readUnicode(L, s.eval.input, L.Get(2)))
	return 1
}

// storeBinding exposes the store as a value with index, newindex and an
// update method. Without a configured store, reads yield nil and writes are
// dropped, so store-free scripts keep running.
func (s *session) storeBinding(L *lua.LState) lua.LValue {
	ud := L.NewUserData()
	ud.Value = s.eval.store
	mt := L.CreateTable(0, 2)
	mt.RawSetString("__index", L.NewFunction(s.storeIndex))
	mt.RawSetString("__newindex", L.NewFunction(s.storeNewIndex))
	L.SetMetatable(ud, mt)
	return ud
}

func (s *session) storeIndex(L *lua.LState) int {
	key := L.CheckString(2)
	if key == "update" {
		L.Push(L.NewFunction(s.storeUpdate))
		return 1
	}
	if s.eval.store == nil {
		L.Push(lua.LNil)
		return 1
	}
	v, err := s.eval.store.Get(s.ctrl.Context(), key)
	if err != nil {
		s.fail(L, &StoreError{Err: err})
		return 0
	}
	L.Push(goToLua(L, v))
	return 1
}

func (s *session) storeNewIndex(L *lua.LState) int {
	key := L.CheckString(2)
	if s.eval.store == nil {
		return 0
	}
	if _, err := s.eval.store.Put(s.ctrl.Context(), key, luaToGo(L.Get(3))); err != nil {
		s.fail(L, &StoreError{Err: err})
	}
	return 0
}

// storeUpdate is the update method: store:update(names, fn, defaults). The
// callback receives the current-or-default values as a list, and whatever
// list it returns is written back atomically. An error inside the callback
// leaves every entry untouched.
func (s *session) storeUpdate(L *lua.LState) int {
	names := checkNameList(L, 2)
	fn := L.CheckFunction(3)
	defaults := optValueList(L, 4)
	if s.eval.store == nil {
		L.Push(lua.LNil)
		return 1
	}

	updateFn := func(values []any) ([]any, error) {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, goToLua(L, values)); err != nil {
			return nil, err
		}
		ret := L.Get(-1)
		L.Pop(1)
		updated, ok := luaToGo(ret).([]any)
		if !ok {
			return nil, &CapabilityError{Module: ModuleCore, Message: "update function must return a table of values"}
		}
		return updated, nil
	}

	updated, err := s.eval.store.Update(s.ctrl.Context(), names, updateFn, defaults)
	if err != nil {
		// A failure raised by the callback itself travels back out
		// unchanged; everything else is a store fault.
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) {
			L.Error(apiErr.Object, 0)
			return 0
		}
		var capErr *CapabilityError
		if errors.As(err, &capErr) {
			s.fail(L, capErr)
			return 0
		}
		s.fail(L, &StoreError{Err: err})
		return 0
	}
	L.Push(goToLua(L, updated))
	return 1
}

// checkNameList reads a table argument of store names, all strings.
func checkNameList(L *lua.LState, n int) []string {
	tbl := L.CheckTable(n)
	names := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		v := tbl.RawGetInt(i)
		sv, ok := v.(lua.LString)
		if !ok {
			L.ArgError(n, "names must be strings")
		}
		names = append(names, string(sv))
	}
	return names
}

// optValueList reads an optional table argument as an ordered value list.
func optValueList(L *lua.LState, n int) []any {
	v := L.Get(n)
	if v == lua.LNil {
		return nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		L.ArgError(n, "table expected")
	}
	switch converted := luaToGo(tbl).(type) {
	case []any:
		return converted
	case map[string]any:
		if len(converted) == 0 {
			return []any{}
		}
	}
	L.ArgError(n, "default values must be a list")
	return nil
}
