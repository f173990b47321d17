package slowcontrol

import "errors"

// Domain errors for the slowcontrol package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, slowcontrol.ErrVariableNotFound) {
//	    // handle unknown variable
//	}
var (
	// ErrVariableNotFound is returned when a variable name is not registered.
	ErrVariableNotFound = errors.New("slowcontrol: variable not found")

	// ErrVariableExists is returned when registering a name that is already taken.
	ErrVariableExists = errors.New("slowcontrol: variable already exists")

	// ErrTypeMismatch is returned when a value of the wrong Go type is
	// requested from or written to a variable.
	ErrTypeMismatch = errors.New("slowcontrol: type mismatch")

	// ErrInvalidName is returned for empty names or names containing
	// topic separators or wildcards.
	ErrInvalidName = errors.New("slowcontrol: invalid variable name")

	// ErrInvalidType is returned for an unknown variable type.
	ErrInvalidType = errors.New("slowcontrol: invalid variable type")

	// ErrInvalidValue is returned when a raw value cannot be parsed for the variable's type.
	ErrInvalidValue = errors.New("slowcontrol: invalid value")

	// ErrChangeRejected is returned when a change hook vetoes a change.
	ErrChangeRejected = errors.New("slowcontrol: change rejected")

	// ErrReadOnly is returned when a remote change targets an info variable.
	ErrReadOnly = errors.New("slowcontrol: variable is read-only")
)
