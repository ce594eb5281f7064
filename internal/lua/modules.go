package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Module names resolvable by require. Nothing else resolves: there is no
// package.path and no loader chain behind the sandbox.
const (
	ModuleCore   = "@luma"
	ModuleCrypto = "@luma/crypto"
	ModuleHTTP   = "@luma/http"
	ModuleJSON   = "@luma/json"
)

// luaRequire resolves the capability modules, caching each one per
// invocation so repeated requires return the same value.
func (s *session) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)
	if s.loaded == nil {
		s.loaded = make(map[string]lua.LValue)
	}
	if mod, ok := s.loaded[name]; ok {
		L.Push(mod)
		return 1
	}

	var mod lua.LValue
	switch name {
	case ModuleCore:
		mod = s.openCore(L)
	case ModuleCrypto:
		mod = s.openCrypto(L)
	case ModuleHTTP:
		mod = s.openHTTP(L)
	case ModuleJSON:
		mod = s.openJSON(L)
	default:
		L.RaiseError("module '%s' not found", name)
		return 0
	}
	s.loaded[name] = mod
	L.Push(mod)
	return 1
}
