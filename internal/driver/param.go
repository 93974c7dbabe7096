package driver

// Param is a value bound to a placeholder of a query. Text parameters carry
// their payload as a string; a NULL parameter carries nil.
type Param struct {
	value any
}

// TextParam builds a text parameter. A nil slice binds NULL.
func TextParam(text []byte) Param {
	if text == nil {
		return Param{}
	}
	return Param{value: string(text)}
}

// ValueParam wraps a value already in a form accepted by database/sql.
func ValueParam(v any) Param {
	return Param{value: v}
}

// Value returns the bound value, nil for NULL.
func (p Param) Value() any {
	return p.value
}

func paramArgs(params []Param) []any {
	if len(params) == 0 {
		return nil
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.value
	}
	return args
}
