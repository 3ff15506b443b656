package entry

import "reflect"

// sameFunction compares two callback values by code-pointer identity, the
// same trick gaio's watcher uses to compare net.Conn identity
// (reflect.ValueOf(x).Pointer()) rather than relying on Go's limited
// function-value comparability.
func sameFunction(a, b func(any)) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
