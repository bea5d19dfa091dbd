package formdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for malformed dot paths.
var ErrInvalidPath = errors.New("invalid field path")

// Segment is one step of a parsed path: either a key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// ParsePath splits "a.b[0].c" into its segments.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var segs []Segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}

		key := part
		var indexes []int
		if open := strings.IndexByte(part, '['); open >= 0 {
			key = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidPath, rest, path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: unclosed index in %q", ErrInvalidPath, path)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, rest[1:end], path)
				}
				indexes = append(indexes, n)
				rest = rest[end+1:]
			}
		}
		if key == "" {
			return nil, fmt.Errorf("%w: index without key in %q", ErrInvalidPath, path)
		}

		segs = append(segs, Segment{Key: key})
		for _, n := range indexes {
			segs = append(segs, Segment{Index: n, IsIndex: true})
		}
	}
	return segs, nil
}

// JoinPath is the inverse of ParsePath.
func JoinPath(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}
