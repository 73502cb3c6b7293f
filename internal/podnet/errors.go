package podnet

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindMissingFile   Kind = "missing_file"
	KindParse         Kind = "parse_error"
	KindMissingField  Kind = "missing_field"
	KindInvalidSubnet Kind = "invalid_subnet"
	KindBothTrue      Kind = "invalid_enablement_both_true"
	KindBothFalse     Kind = "invalid_enablement_both_false"
	KindNonBoolean    Kind = "invalid_enablement_non_boolean"
)

var (
	ErrMissingFile   = errors.New("podnet config file does not exist")
	ErrParse         = errors.New("podnet config file could not be decoded")
	ErrMissingField  = errors.New("podnet config field is missing")
	ErrInvalidSubnet = errors.New("podnet config ipv6_subnet is invalid")
	ErrBothEnabled   = errors.New("podnet_a_enabled and podnet_b_enabled are both true")
	ErrNoneEnabled   = errors.New("podnet_a_enabled and podnet_b_enabled are both false")
	ErrNonBoolean    = errors.New("podnet_a_enabled or podnet_b_enabled is not a boolean")
)

var kindSentinels = map[Kind]error{
	KindMissingFile:   ErrMissingFile,
	KindParse:         ErrParse,
	KindMissingField:  ErrMissingField,
	KindInvalidSubnet: ErrInvalidSubnet,
	KindBothTrue:      ErrBothEnabled,
	KindBothFalse:     ErrNoneEnabled,
	KindNonBoolean:    ErrNonBoolean,
}

// ConfigError describes why config.json could not be turned into a NodePair.
type ConfigError struct {
	Kind  Kind
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
