// Package service exposes ordinary Go values as JSON-RPC methods.
//
// An Adapter installs itself as a server's fallback handler. A call to
// "calc.add" looks up the value registered as "calc" and invokes its Add
// method, decoding positional params into the method's arguments:
//
//	type Calc struct{}
//
//	func (Calc) Add(a, b int) int { return a + b }
//
//	adapter := service.New()
//	_ = adapter.Register("calc", Calc{})
//	adapter.Install(srv)
//
// Longer names walk nested exported fields, methods and string-keyed
// maps, so "store.users.get" reaches store.Users.Get. A lowercase member
// name also matches its exported spelling.
//
// Methods may take a leading context.Context and may return nothing, a
// value, an error, or (value, error). A returned server.Deferred, such as
// a *server.Future, completes the call when it settles.
package service
