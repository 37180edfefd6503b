// Package runjs runs JavaScript from Go and converts values between the
// two worlds.
//
// A Session holds the main code, the libraries and the global variables of
// a program. Each Run assembles them into a unit, hands it to a backend and
// decodes the result into plain Go values: nil, bool, int64, float64,
// string, []any and *value.Object.
//
//	registry := runjs.NewRegistry(js.New(js.Options{}), node.New(node.Options{}))
//	session, err := registry.New(js.Name, runjs.Options{
//		Main: "function add5(v) { return v + 5 }",
//	})
//	if err != nil {
//		return err
//	}
//	ret, err := session.Call(ctx, "add5", 125) // int64(130)
//
// Errors are *errs.Error values. Use errors.Is with the kinds re-exported
// here, such as ErrFunctionNotFound.
package runjs
