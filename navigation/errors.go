package navigation

import "errors"

var (
	// ErrInvalidMove is returned when a move is not in the legal move set.
	ErrInvalidMove = errors.New("invalid move")
	// ErrIndexOutOfRange is returned by JumpTo for an index outside -1..Len()-1.
	ErrIndexOutOfRange = errors.New("move index out of range")
	// ErrImport matches every *ImportError with errors.Is.
	ErrImport = errors.New("pgn import failed")
)

// ImportError reports a PGN text that could not be loaded. The cursor is left
// untouched when it is returned.
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func (e *ImportError) Is(target error) bool {
	return target == ErrImport
}
