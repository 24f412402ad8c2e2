package expr

import (
	"fmt"
	"math"
)

func eval(n node) (Value, error) {
	switch t := n.(type) {
	case *literalNode:
		return t.val, nil
	case *unaryNode:
		return evalUnary(t)
	case *binaryNode:
		return evalBinary(t)
	default:
		return Null(), fmt.Errorf("unknown node type %T", n)
	}
}

func evalUnary(n *unaryNode) (Value, error) {
	child, err := eval(n.child)
	if err != nil {
		return Null(), err
	}
	switch n.op {
	case "!":
		return Boolean(!child.IsTruthy()), nil
	case "-":
		f, ok := child.AsNumber()
		if !ok {
			return Null(), fmt.Errorf("cannot negate %s", child)
		}
		return Number(-f), nil
	}
	return Null(), fmt.Errorf("unknown unary operator %q", n.op)
}

func evalBinary(n *binaryNode) (Value, error) {
	// Boolean connectives short-circuit.
	switch n.op {
	case "&&":
		left, err := eval(n.left)
		if err != nil {
			return Null(), err
		}
		if !left.IsTruthy() {
			return Boolean(false), nil
		}
		right, err := eval(n.right)
		if err != nil {
			return Null(), err
		}
		return Boolean(right.IsTruthy()), nil
	case "||":
		left, err := eval(n.left)
		if err != nil {
			return Null(), err
		}
		if left.IsTruthy() {
			return Boolean(true), nil
		}
		right, err := eval(n.right)
		if err != nil {
			return Null(), err
		}
		return Boolean(right.IsTruthy()), nil
	}

	left, err := eval(n.left)
	if err != nil {
		return Null(), err
	}
	right, err := eval(n.right)
	if err != nil {
		return Null(), err
	}

	switch n.op {
	case "==":
		return Boolean(looseEqual(left, right)), nil
	case "!=":
		return Boolean(!looseEqual(left, right)), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	case "+":
		// A string on either side makes + concatenation, otherwise it
		// is numeric addition.
		if left.Kind == KindString || right.Kind == KindString {
			return String(left.Text() + right.Text()), nil
		}
		lf, lok := left.AsNumber()
		rf, rok := right.AsNumber()
		if lok && rok {
			return Number(lf + rf), nil
		}
		return Null(), fmt.Errorf("cannot add %s and %s", left, right)
	case "-", "*", "/", "%":
		return arithmetic(n.op, left, right)
	}
	return Null(), fmt.Errorf("unknown operator %q", n.op)
}

func arithmetic(op string, left, right Value) (Value, error) {
	lf, lok := left.AsNumber()
	rf, rok := right.AsNumber()
	if !lok || !rok {
		return Null(), fmt.Errorf("operator %q requires numeric operands, got %s and %s", op, left, right)
	}
	switch op {
	case "-":
		return Number(lf - rf), nil
	case "*":
		return Number(lf * rf), nil
	case "/":
		if rf == 0 {
			return Null(), fmt.Errorf("division by zero")
		}
		return Number(lf / rf), nil
	case "%":
		if rf == 0 {
			return Null(), fmt.Errorf("modulus by zero")
		}
		return Number(math.Mod(lf, rf)), nil
	}
	return Null(), fmt.Errorf("unknown arithmetic operator %q", op)
}

func compare(op string, left, right Value) (Value, error) {
	lf, lok := left.AsNumber()
	rf, rok := right.AsNumber()
	if lok && rok {
		switch op {
		case "<":
			return Boolean(lf < rf), nil
		case "<=":
			return Boolean(lf <= rf), nil
		case ">":
			return Boolean(lf > rf), nil
		case ">=":
			return Boolean(lf >= rf), nil
		}
	}
	// Lexicographic fallback covers date strings in ISO form.
	ls, rs := left.Text(), right.Text()
	switch op {
	case "<":
		return Boolean(ls < rs), nil
	case "<=":
		return Boolean(ls <= rs), nil
	case ">":
		return Boolean(ls > rs), nil
	case ">=":
		return Boolean(ls >= rs), nil
	}
	return Null(), fmt.Errorf("unknown comparison operator %q", op)
}

// looseEqual compares numerically when both sides coerce to numbers, and by
// text otherwise, so '1' == 1 and 'true' == true both hold.
func looseEqual(left, right Value) bool {
	if left.Kind == KindNull || right.Kind == KindNull {
		return left.Kind == right.Kind
	}
	lf, lok := left.AsNumber()
	rf, rok := right.AsNumber()
	if lok && rok {
		return lf == rf
	}
	return left.Text() == right.Text()
}
