// Package command composes literal argument vectors for the engine.
//
// A Builder never produces a shell string: every value is its own argv
// element and is passed to the process unquoted.
package command

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Builder accumulates an argument vector in emission order.
type Builder struct {
	args []string
}

// New starts a vector with the engine subcommand.
func New(subcommand string) *Builder {
	return &Builder{args: []string{subcommand}}
}

// Required appends flag and value unconditionally.
func (b *Builder) Required(flag, value string) *Builder {
	b.args = append(b.args, flag, value)
	return b
}

// RequiredInt appends flag and the decimal value.
func (b *Builder) RequiredInt(flag string, value int) *Builder {
	return b.Required(flag, strconv.Itoa(value))
}

// RequiredFloat appends flag and the shortest decimal form of value.
func (b *Builder) RequiredFloat(flag string, value float64) *Builder {
	return b.Required(flag, strconv.FormatFloat(value, 'f', -1, 64))
}

// Optional appends flag and value when value is non-empty.
func (b *Builder) Optional(flag, value string) *Builder {
	if value != "" {
		b.args = append(b.args, flag, value)
	}
	return b
}

// OptionalInt appends flag and value when value is non-nil.
func (b *Builder) OptionalInt(flag string, value *int) *Builder {
	if value != nil {
		b.args = append(b.args, flag, strconv.Itoa(*value))
	}
	return b
}

// Flag appends a valueless flag when on is true.
func (b *Builder) Flag(flag string, on bool) *Builder {
	if on {
		b.args = append(b.args, flag)
	}
	return b
}

// Joined appends flag and the comma-joined values when values is non-empty.
func (b *Builder) Joined(flag string, values []string) *Builder {
	if len(values) > 0 {
		b.args = append(b.args, flag, strings.Join(values, ","))
	}
	return b
}

// Repeated appends flag and value once per item.
func (b *Builder) Repeated(flag string, values []string) *Builder {
	for _, v := range values {
		b.args = append(b.args, flag, v)
	}
	return b
}

// Args returns a copy of the composed vector.
func (b *Builder) Args() []string {
	return append([]string(nil), b.args...)
}

// ResolveBinary returns the absolute path of binary when it names an
// existing file, and the raw token otherwise so PATH lookup applies.
func ResolveBinary(binary string) string {
	info, err := os.Stat(binary)
	if err != nil || info.IsDir() {
		return binary
	}
	abs, err := filepath.Abs(binary)
	if err != nil {
		return binary
	}
	return abs
}

// ResolveComponents absolutizes every comma-separated component of s that
// names an existing file, leaving other components untouched. Used for
// engine arguments such as "matrix.tsv,names.txt" or "meta.tsv,Name,Species".
func ResolveComponents(s string) string {
	parts := strings.Split(s, ",")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if info, err := os.Stat(part); err == nil && !info.IsDir() {
			parts[i] = ResolvePath(part)
		}
	}
	return strings.Join(parts, ",")
}

// ResolvePath makes an input path absolute; the engine runs in a scratch
// directory. Empty stays empty.
func ResolvePath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
