package utils

import "fmt"

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    Green,
	"POST":   Blue,
	"PUT":    Cyan,
	"DELETE": Yellow,
	"PATCH":  Magenta,
}

// ColourMethod pads an HTTP method to a fixed width and wraps it in its
// terminal colour. Unknown methods are gray.
func ColourMethod(method string) string {
	padded := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + padded + ResetColor
	}
	return Gray + padded + ResetColor
}

// ColourStatus colours an HTTP status code: green for 2xx, yellow for 4xx,
// red for 5xx and transport failures (0).
func ColourStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return fmt.Sprintf("%s%d%s", Green, code, ResetColor)
	case code >= 400 && code < 500:
		return fmt.Sprintf("%s%d%s", Yellow, code, ResetColor)
	case code == 0 || code >= 500:
		return fmt.Sprintf("%s%d%s", Red, code, ResetColor)
	default:
		return fmt.Sprintf("%d", code)
	}
}
