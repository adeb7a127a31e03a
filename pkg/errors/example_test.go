package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

// ExampleNew demonstrates creating a typed error with details.
func ExampleNew() {
	err := errors.New(errors.ErrorTypeFormat, "invalid sync").
		WithDetail("offset", 4112)

	fmt.Println(err)
	fmt.Println(err.Details["offset"])

	// Output:
	// format: invalid sync
	// 4112
}

// ExampleWrap shows how a low-level error keeps its cause when wrapped.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFormat, "truncated block")

	fmt.Println(err)
	fmt.Println(errors.Is(err, io.ErrUnexpectedEOF))

	// Output:
	// format: truncated block: unexpected EOF
	// true
}

// ExampleIsType demonstrates checking error types through a chain.
func ExampleIsType() {
	cause := errors.New(errors.ErrorTypeTypeMismatch, "field age is string, not int64")
	err := errors.Wrap(cause, errors.ErrorTypeProcessing, "filter failed")

	fmt.Printf("processing: %v\n", errors.IsType(err, errors.ErrorTypeProcessing))
	fmt.Printf("type_mismatch: %v\n", errors.IsType(err, errors.ErrorTypeTypeMismatch))
	fmt.Printf("format: %v\n", errors.IsType(err, errors.ErrorTypeFormat))

	// Output:
	// processing: true
	// type_mismatch: true
	// format: false
}
