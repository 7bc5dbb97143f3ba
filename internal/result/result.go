// ABOUTME: Loading/Success/Error envelope produced by every live read
// ABOUTME: Consumers switch on Kind instead of handling raw errors

// Package result defines the tri-state envelope that wraps asynchronous reads.
package result

import "fmt"

// Kind identifies which variant a State holds.
type Kind int

const (
	KindLoading Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is one value of a live read: still loading, a payload, or an error
// message for display.
type State[T any] struct {
	Kind    Kind
	Data    T      // set for KindSuccess
	Message string // set for KindError
}

// Loading returns the initial state of every stream.
func Loading[T any]() State[T] {
	return State[T]{Kind: KindLoading}
}

// Success wraps a payload.
func Success[T any](data T) State[T] {
	return State[T]{Kind: KindSuccess, Data: data}
}

// Error wraps a human-readable failure message.
func Error[T any](message string) State[T] {
	return State[T]{Kind: KindError, Message: message}
}

func (s State[T]) IsLoading() bool { return s.Kind == KindLoading }
func (s State[T]) IsSuccess() bool { return s.Kind == KindSuccess }
func (s State[T]) IsError() bool   { return s.Kind == KindError }

func (s State[T]) String() string {
	switch s.Kind {
	case KindSuccess:
		return fmt.Sprintf("success(%v)", s.Data)
	case KindError:
		return "error(" + s.Message + ")"
	default:
		return s.Kind.String()
	}
}
