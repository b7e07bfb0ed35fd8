package dag

import "math"

func bool2float(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// EvalBinary applies the scalar operator op to a and b.  It reports false
// for operators that are not defined on scalars.
func EvalBinary(op string, a, b float64) (float64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		return a / b, true
	case "%%", "%":
		return math.Mod(a, b), true
	case "^":
		return math.Pow(a, b), true
	case "min":
		return min(a, b), true
	case "max":
		return max(a, b), true
	case "==":
		return bool2float(a == b), true
	case "!=":
		return bool2float(a != b), true
	case "<":
		return bool2float(a < b), true
	case "<=":
		return bool2float(a <= b), true
	case ">":
		return bool2float(a > b), true
	case ">=":
		return bool2float(a >= b), true
	case "&":
		return bool2float(a != 0 && b != 0), true
	case "|":
		return bool2float(a != 0 || b != 0), true
	}
	return 0, false
}

func EvalUnary(op string, a float64) (float64, bool) {
	switch op {
	case "-":
		return -a, true
	case "!":
		return bool2float(a == 0), true
	case "abs":
		return math.Abs(a), true
	case "sqrt":
		return math.Sqrt(a), true
	case "exp":
		return math.Exp(a), true
	case "log":
		return math.Log(a), true
	case "round":
		return math.Round(a), true
	case "floor":
		return math.Floor(a), true
	case "ceil":
		return math.Ceil(a), true
	}
	return 0, false
}
