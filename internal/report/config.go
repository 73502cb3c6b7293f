package report

import (
	"errors"
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/podnet"
)

// ConfigCode returns the code of a config.json resolution failure.
func ConfigCode(op plan.Operation, err error) int {
	base := Base(op)
	var cfgErr *podnet.ConfigError
	if !errors.As(err, &cfgErr) {
		return base + 12
	}
	switch cfgErr.Kind {
	case podnet.KindMissingFile:
		return base + 11
	case podnet.KindParse:
		return base + 12
	case podnet.KindMissingField:
		switch cfgErr.Field {
		case podnet.FieldSubnet:
			return base + 13
		case podnet.FieldAEnabled:
			return base + 15
		default:
			return base + 16
		}
	case podnet.KindInvalidSubnet:
		return base + 14
	case podnet.KindBothTrue:
		return base + 17
	case podnet.KindBothFalse:
		return base + 18
	default:
		return base + 19
	}
}

// ConfigMessage renders a resolution failure for operators.
func ConfigMessage(op plan.Operation, err error) string {
	code := ConfigCode(op, err)
	var cfgErr *podnet.ConfigError
	if !errors.As(err, &cfgErr) {
		return fmt.Sprintf("%d: Failed to load PodNet config: %v", code, err)
	}
	path := cfgErr.Path
	var text string
	switch cfgErr.Kind {
	case podnet.KindMissingFile:
		text = fmt.Sprintf("Failed to load config file %s, it does not exist.", path)
	case podnet.KindParse:
		text = fmt.Sprintf("Failed to parse config file %s: %v", path, cfgErr.Err)
	case podnet.KindMissingField:
		text = fmt.Sprintf("Failed to get `%s` from config file %s.", cfgErr.Field, path)
	case podnet.KindInvalidSubnet:
		text = fmt.Sprintf("Invalid value for `%s` from config file %s: %v", podnet.FieldSubnet, path, cfgErr.Err)
	case podnet.KindBothTrue:
		text = fmt.Sprintf("Invalid values for `%s` and `%s`, both are true.", podnet.FieldAEnabled, podnet.FieldBEnabled)
	case podnet.KindBothFalse:
		text = fmt.Sprintf("Invalid values for `%s` and `%s`, both are false.", podnet.FieldAEnabled, podnet.FieldBEnabled)
	default:
		text = fmt.Sprintf("Invalid values for `%s` and `%s`, one or both are non booleans.", podnet.FieldAEnabled, podnet.FieldBEnabled)
	}
	return fmt.Sprintf("%d: %s", code, text)
}
