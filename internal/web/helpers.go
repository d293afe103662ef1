package web

import "strconv"

// ContextValue returns the request value stored under key, or the zero T.
func ContextValue[T any](c Context, key any) T {
	if v, ok := c.Get(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

// Param returns a typed URL parameter, or the zero value when it does not
// parse.
func Param[T string | int | int64 | float64 | bool](c Context, name string) T {
	v, _ := convert[T](c.Param(name))
	return v
}

// Query returns a typed query parameter, or the zero value.
func Query[T string | int | int64 | float64 | bool](c Context, name string) T {
	v, _ := convert[T](c.Query(name))
	return v
}

// QueryDefault returns a typed query parameter, or def when it is empty or
// does not parse.
func QueryDefault[T string | int | int64 | float64 | bool](c Context, name string, def T) T {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, ok := convert[T](raw)
	if !ok {
		return def
	}
	return v
}

func convert[T string | int | int64 | float64 | bool](raw string) (T, bool) {
	var zero T
	var (
		v   any
		err error
	)
	switch any(zero).(type) {
	case string:
		v = raw
	case int:
		v, err = strconv.Atoi(raw)
	case int64:
		v, err = strconv.ParseInt(raw, 10, 64)
	case float64:
		v, err = strconv.ParseFloat(raw, 64)
	case bool:
		v, err = strconv.ParseBool(raw)
	}
	if err != nil {
		return zero, false
	}
	return v.(T), true
}
