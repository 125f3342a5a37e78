package resource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arloliu/go-ivi/ivierr"
)

// ErrInvalidFilter is returned for a malformed VISA search expression.
var ErrInvalidFilter = ivierr.New("resource: invalid filter expression", ivierr.ErrConfiguration)

// TranslateFilter converts a VISA search expression into an anchored, case-insensitive
// Go regular expression.
//
// In a VISA expression '?' matches any one character, '*' and '+' repeat the preceding
// character or group, and '[list]', '(a|b)' and '\' keep their regular expression meaning.
// Every other regular expression metacharacter is literal.
func TranslateFilter(visa string) (string, error) {
	var b strings.Builder
	b.WriteString("^(?i:")

	inClass := false
	for i := 0; i < len(visa); i++ {
		c := visa[i]
		switch {
		case c == '\\':
			if i+1 >= len(visa) {
				return "", fmt.Errorf("%w: trailing escape in %q", ErrInvalidFilter, visa)
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(visa[i])))
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == '?':
			b.WriteByte('.')
		case strings.IndexByte("*+()|", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if inClass {
		return "", fmt.Errorf("%w: unterminated '[' in %q", ErrInvalidFilter, visa)
	}
	b.WriteString(")$")

	expr := b.String()
	if _, err := regexp.Compile(expr); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidFilter, visa, err)
	}

	return expr, nil
}

// CompileFilter translates and compiles a VISA search expression.
func CompileFilter(visa string) (*regexp.Regexp, error) {
	expr, err := TranslateFilter(visa)
	if err != nil {
		return nil, err
	}

	return regexp.MustCompile(expr), nil
}

// Match reports whether name matches the VISA search expression.
func Match(visa, name string) (bool, error) {
	re, err := CompileFilter(visa)
	if err != nil {
		return false, err
	}

	return re.MatchString(name), nil
}

// BuildFilter returns a VISA expression matching resources of the given interfaces and
// class, e.g. "(TCPIP|GPIB|USB)?*INSTR". No interfaces match any interface; an empty
// class matches any class.
func BuildFilter(interfaces []Interface, class Class) string {
	var b strings.Builder

	switch len(interfaces) {
	case 0:
	case 1:
		b.WriteString(string(interfaces[0]))
	default:
		names := make([]string, len(interfaces))
		for i, it := range interfaces {
			names[i] = string(it)
		}
		b.WriteString("(" + strings.Join(names, "|") + ")")
	}

	b.WriteString("?*")
	b.WriteString(string(class))

	return b.String()
}
