package naptr

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

// ErrInvalidNAPTRRecord is returned when a NAPTR regexp field cannot be parsed or applied
var ErrInvalidNAPTRRecord = errors.New("invalid NAPTR record format")

// Rewrite is a parsed NAPTR substitution expression:
//
//	<delim> ere <delim> replacement <delim> [i]
//
// The delimiter is the first character of the field. Inside ere and
// replacement, a backslash followed by the delimiter yields the delimiter.
type Rewrite struct {
	re       *regexp.Regexp
	template string
	raw      string
}

// ParseRegexp parses the regexp field of a NAPTR record
func ParseRegexp(field string) (*Rewrite, error) {
	if len(field) < 3 {
		return nil, fmt.Errorf("%w: regexp too short: %q", ErrInvalidNAPTRRecord, field)
	}

	delim := field[0]
	if delim == '\\' || delim == 'i' || (delim >= '0' && delim <= '9') {
		return nil, fmt.Errorf("%w: invalid delimiter %q", ErrInvalidNAPTRRecord, delim)
	}

	var parts []string
	var current strings.Builder
	for i := 1; i < len(field); i++ {
		c := field[i]
		switch {
		case c == '\\' && i+1 < len(field):
			next := field[i+1]
			if next == delim {
				current.WriteByte(delim)
			} else {
				current.WriteByte('\\')
				current.WriteByte(next)
			}
			i++
		case c == delim && len(parts) < 2:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: invalid regexp format: %q", ErrInvalidNAPTRRecord, field)
	}
	ere, replacement, flags := parts[0], parts[1], current.String()

	if ere == "" {
		return nil, fmt.Errorf("%w: empty pattern in %q", ErrInvalidNAPTRRecord, field)
	}
	if replacement == "" {
		return nil, fmt.Errorf("%w: empty replacement in %q", ErrInvalidNAPTRRecord, field)
	}

	re, err := compileERE(ere, flags)
	if err != nil {
		return nil, err
	}

	template, err := convertReplacement(replacement, re.NumSubexp())
	if err != nil {
		return nil, err
	}

	return &Rewrite{re: re, template: template, raw: field}, nil
}

// compileERE compiles a POSIX extended regular expression with
// leftmost-longest matching. Perl-only syntax is rejected.
func compileERE(ere, flags string) (*regexp.Regexp, error) {
	switch flags {
	case "":
		re, err := regexp.CompilePOSIX(ere)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNAPTRRecord, err)
		}
		return re, nil
	case "i":
		// CompilePOSIX has no case folding; check the ERE grammar first, then
		// compile with (?i) and switch to leftmost-longest.
		if _, err := syntax.Parse(ere, syntax.POSIX); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNAPTRRecord, err)
		}
		re, err := regexp.Compile("(?i)" + ere)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNAPTRRecord, err)
		}
		re.Longest()
		return re, nil
	default:
		return nil, fmt.Errorf("%w: unsupported flags %q", ErrInvalidNAPTRRecord, flags)
	}
}

// convertReplacement translates \N back references into regexp.Expand syntax
func convertReplacement(replacement string, groups int) (string, error) {
	var b strings.Builder
	for i := 0; i < len(replacement); i++ {
		c := replacement[i]
		switch {
		case c == '\\' && i+1 < len(replacement):
			next := replacement[i+1]
			i++
			if next >= '0' && next <= '9' {
				n := int(next - '0')
				if n > groups {
					return "", fmt.Errorf("%w: back reference \\%d without group", ErrInvalidNAPTRRecord, n)
				}
				fmt.Fprintf(&b, "${%d}", n)
				continue
			}
			if next == '$' {
				b.WriteString("$$")
				continue
			}
			b.WriteByte(next)
		case c == '$':
			b.WriteString("$$")
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Apply substitutes the first match in aus. Characters outside the match are
// kept.
func (r *Rewrite) Apply(aus string) (string, error) {
	loc := r.re.FindStringSubmatchIndex(aus)
	if loc == nil {
		return "", fmt.Errorf("%w: %q does not match %q", ErrInvalidNAPTRRecord, r.raw, aus)
	}
	expanded := r.re.ExpandString(nil, r.template, aus, loc)
	return aus[:loc[0]] + string(expanded) + aus[loc[1]:], nil
}

func (r *Rewrite) String() string {
	return r.raw
}
