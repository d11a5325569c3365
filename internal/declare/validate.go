package declare

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidPath is returned for a group path that does not start with "/"
	// or contains empty segments.
	ErrInvalidPath = errors.New("invalid group path")

	// ErrGroupAbsentUnsupported is returned for a device group declared with
	// ensure=absent. Removing groups is not supported.
	ErrGroupAbsentUnsupported = errors.New("ensure=absent is not supported for device groups")

	// ErrDuplicate is returned for a second declaration with the same key.
	ErrDuplicate = errors.New("duplicate declaration")

	ErrUnknownKind = errors.New("unknown resource kind")
)

// ValidationError is a precondition failure for one declaration.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid declaration %s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// Normalize fills defaults: ensure=present, mode=purge, lower-case osfam.
func (r *Resource) Normalize() {
	switch {
	case r.Collector != nil:
		if r.Collector.Ensure == "" {
			r.Collector.Ensure = EnsurePresent
		}
		r.Collector.OSFamily = strings.ToLower(r.Collector.OSFamily)
	case r.DeviceGroup != nil:
		if r.DeviceGroup.Ensure == "" {
			r.DeviceGroup.Ensure = EnsurePresent
		}
		if r.DeviceGroup.Mode == "" {
			r.DeviceGroup.Mode = ModePurge
		}
	}
}

// Validate checks a single declaration. It must pass before any API call
// is made for the resource.
func Validate(r Resource) error {
	wrap := func(err error) error {
		return &ValidationError{Key: r.Key(), Err: err}
	}

	switch r.Kind {
	case KindCollector:
		if r.Collector == nil {
			return wrap(ErrUnknownKind)
		}
		if err := validate.Struct(r.Collector); err != nil {
			return wrap(err)
		}
	case KindDeviceGroup:
		g := r.DeviceGroup
		if g == nil {
			return wrap(ErrUnknownKind)
		}
		if err := validate.Struct(g); err != nil {
			return wrap(err)
		}
		if err := ValidatePath(g.FullPath); err != nil {
			return wrap(err)
		}
		for k := range g.Properties {
			if strings.TrimSpace(k) == "" {
				return wrap(fmt.Errorf("property name must not be empty"))
			}
		}
		if g.Ensure == EnsureAbsent {
			return wrap(ErrGroupAbsentUnsupported)
		}
	default:
		return wrap(ErrUnknownKind)
	}
	return nil
}

// ValidatePath checks that a group path starts with "/" and has no empty
// segments. "/" alone is the root.
func ValidatePath(fullpath string) error {
	if !strings.HasPrefix(fullpath, "/") {
		return fmt.Errorf("%w: %q must start with \"/\"", ErrInvalidPath, fullpath)
	}
	if fullpath == "/" {
		return nil
	}
	for _, seg := range strings.Split(fullpath[1:], "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, fullpath)
		}
	}
	return nil
}

// Check normalizes and validates every declaration. Valid declarations are
// returned in order; each invalid one yields an error and is dropped, so one
// bad declaration does not stop the others.
func Check(set Set) (Set, []error) {
	valid := make(Set, 0, len(set))
	seen := make(map[string]bool, len(set))
	var errs []error

	for _, r := range set {
		r.Normalize()
		if err := Validate(r); err != nil {
			errs = append(errs, err)
			continue
		}
		key := r.Key()
		if seen[key] {
			errs = append(errs, &ValidationError{Key: key, Err: ErrDuplicate})
			continue
		}
		seen[key] = true
		valid = append(valid, r)
	}

	return valid, errs
}
