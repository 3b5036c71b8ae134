package components

import "reflect"

// reflectTypeOf is a tiny helper so each registration's schema call site
// reads `reflectTypeOf(fooConfig{})` instead of repeating the reflect
// import's verbosity at every factory.
func reflectTypeOf(v any) reflect.Type {
	return reflect.TypeOf(v)
}
