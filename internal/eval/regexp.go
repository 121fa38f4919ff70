package eval

import (
	"regexp"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/docstore/internal/ir"
)

// regexps caches compiled patterns keyed by flags and pattern.
// Filters run the same literal once per scanned entry.
var regexps = xsync.NewMapOf[string, *regexp.Regexp]()

// compileRegexp translates a regexp literal into RE2.
//
// Flags i, m and s map to the RE2 flags of the same name. Flags g, u, d and
// y only affect iteration or indices, which matching ignores.
func compileRegexp(lit ir.RegexpLiteral) (*regexp.Regexp, error) {
	cacheKey := lit.Flags + "/" + lit.Pattern
	if re, ok := regexps.Load(cacheKey); ok {
		return re, nil
	}

	var inline strings.Builder
	for _, f := range lit.Flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'u', 'd', 'y':
		default:
			return nil, newError(ErrCodeInvalidRegexp, string(ir.OpMatch), "unsupported regexp flag %q", f)
		}
	}

	pattern := lit.Pattern
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newError(ErrCodeInvalidRegexp, string(ir.OpMatch), "compile %q: %v", lit.Pattern, err)
	}

	actual, _ := regexps.LoadOrStore(cacheKey, re)
	return actual, nil
}

// CheckRegexp reports whether lit compiles, with the same flag handling the
// =~ operator uses.
func CheckRegexp(lit ir.RegexpLiteral) error {
	_, err := compileRegexp(lit)
	return err
}
