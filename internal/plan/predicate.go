package plan

// Predicate decides whether a finished command counts as success. stdout is
// already trimmed.
type Predicate func(status int, stdout string) bool

func ExitZero(status int, _ string) bool { return status == 0 }

// ExitIn accepts any of the given exit codes. Probes use it to treat "not
// found" as a valid answer.
func ExitIn(codes ...int) Predicate {
	return func(status int, _ string) bool {
		for _, c := range codes {
			if status == c {
				return true
			}
		}
		return false
	}
}

func ExitZeroNonEmpty(status int, stdout string) bool {
	return status == 0 && stdout != ""
}

func ExitZeroEmpty(status int, stdout string) bool {
	return status == 0 && stdout == ""
}
