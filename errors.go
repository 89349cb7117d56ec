package noir

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"syscall"
)

// ErrVoid signals a silent exit: the consumer of our output went away
// (broken pipe). The CLI maps it to exit status 0 without a message.
var ErrVoid = errors.New("noir: void")

// PathNotFoundError is returned when an operation references an image
// path that is absent from the catalog.
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// InvalidTagError is returned for tag names that do not match \S+.
type InvalidTagError struct {
	Tag string
}

func (e *InvalidTagError) Error() string {
	return fmt.Sprintf("invalid tag format: %q", e.Tag)
}

// InvalidOutputFormatError is returned for unknown output format names.
type InvalidOutputFormatError struct {
	Name string
}

func (e *InvalidOutputFormatError) Error() string {
	return fmt.Sprintf("invalid output format name: %s", e.Name)
}

// TagGeneratorError is returned when a tag generator subprocess exits
// non-zero or prints stdout that is not valid UTF-8. Stderr carries the
// generator's diagnostic output.
type TagGeneratorError struct {
	Stderr string
}

func (e *TagGeneratorError) Error() string {
	return fmt.Sprintf("tag generator failed: %s", e.Stderr)
}

// PathedError decorates an inner error with the file it occurred on.
type PathedError struct {
	Err  error
	Path string
}

func (e *PathedError) Error() string {
	return fmt.Sprintf("%s for %s", e.Err, e.Path)
}

func (e *PathedError) Unwrap() error {
	return e.Err
}

// WithPath wraps err with the file it occurred on. Already-decorated
// errors are returned unchanged so the innermost path wins.
func WithPath(err error, path string) error {
	if err == nil {
		return nil
	}
	var pe *PathedError
	if errors.As(err, &pe) {
		return err
	}
	return &PathedError{Err: err, Path: path}
}

// MapPipe converts broken-pipe write failures into ErrVoid so that
// `noir search | head` exits cleanly. Other errors pass through.
func MapPipe(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) {
		return ErrVoid
	}
	return err
}

var tagName = regexp.MustCompile(`^\S+$`)

// Tag is a validated tag name: one run of non-whitespace characters.
type Tag string

// NewTag validates s as a tag name.
func NewTag(s string) (Tag, error) {
	if !tagName.MatchString(s) {
		return "", &InvalidTagError{Tag: s}
	}
	return Tag(s), nil
}

// NewTags validates a list of tag names, failing on the first bad one.
func NewTags(ss []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(ss))
	for _, s := range ss {
		t, err := NewTag(s)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}
