package application

import (
	"fmt"

	"betmirror/events"
)

// AssertEventType asserts an event to a concrete value type. Pointers to the
// type are accepted and dereferenced.
func AssertEventType[T events.Event](event interface{}, expectedTypeName string) (T, error) {
	var zero T

	switch e := event.(type) {
	case T:
		return e, nil
	case *T:
		if e != nil {
			return *e, nil
		}
		return zero, fmt.Errorf("event type assertion failed: expected %s, got nil %T", expectedTypeName, event)
	}

	errMsg := fmt.Sprintf("event type assertion failed: expected %s, got %T", expectedTypeName, event)
	if e, ok := event.(events.Event); ok {
		errMsg += fmt.Sprintf(" (event.Type()=%s)", e.Type())
	}
	return zero, fmt.Errorf("%s", errMsg)
}
