package safe

import (
	"ChatRelay/logger"
)

// Go starts a goroutine that recovers from panic, so a misbehaving
// handler can't take the whole relay down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// DefaultInt returns the dereferenced value of an int pointer,
// or the fallback if the pointer is nil.
func DefaultInt(i *int, fallback int) int {
	if i == nil {
		return fallback
	}
	return *i
}
