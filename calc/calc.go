// Package calc evaluates the arithmetic of the calculate command.
package calc

import (
	"fmt"

	"github.com/code19m/errx"

	"mini-cmd/message"
)

const (
	// CodeDivisionByZero is returned when dividing by zero.
	CodeDivisionByZero = "DIVISION_BY_ZERO"

	// CodeUnknownOperation is returned for an operation outside add, subtract, multiply and divide.
	CodeUnknownOperation = "UNKNOWN_OPERATION"
)

// Evaluate applies op to a and b with IEEE-754 double arithmetic.
// Dividing by zero is an error instead of producing an infinity or NaN;
// NaN and infinite operands are otherwise accepted and propagate.
func Evaluate(op message.Operation, a, b float64) (float64, error) {
	switch op {
	case message.OpAdd:
		return a + b, nil
	case message.OpSubtract:
		return a - b, nil
	case message.OpMultiply:
		return a * b, nil
	case message.OpDivide:
		if b == 0 {
			return 0, errx.New("division by zero", errx.WithCode(CodeDivisionByZero), errx.WithType(errx.T_Validation))
		}
		return a / b, nil
	}
	return 0, errx.New(
		fmt.Sprintf("unknown operation `%s`", op),
		errx.WithCode(CodeUnknownOperation),
		errx.WithType(errx.T_Validation),
	)
}
