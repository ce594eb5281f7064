package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lumahq/luma/internal/value"
)

// openJSON builds the @luma/json module with encode and decode methods.
func (s *session) openJSON(L *lua.LState) lua.LValue {
	ud := L.NewUserData()
	mt := L.CreateTable(0, 1)
	idx := L.CreateTable(0, 2)
	idx.RawSetString("encode", L.NewFunction(s.jsonEncode))
	idx.RawSetString("decode", L.NewFunction(s.jsonDecode))
	mt.RawSetString("__index", idx)
	L.SetMetatable(ud, mt)
	return ud
}

func (s *session) jsonEncode(L *lua.LState) int {
	data, err := value.EncodeJSON(luaToGo(L.Get(2)))
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleJSON, Message: err.Error()})
		return 0
	}
	L.Push(lua.LString(data))
	return 1
}

func (s *session) jsonDecode(L *lua.LState) int {
	v, err := value.DecodeJSON([]byte(L.CheckString(2)))
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleJSON, Message: err.Error()})
		return 0
	}
	L.Push(goToLua(L, v))
	return 1
}
