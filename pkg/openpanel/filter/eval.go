package filter

import (
	"fmt"
	"strings"
)

type comparator func(left, right any) bool

// equal compares numbers numerically and everything else by its printed
// form. null equals only null.
func equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}

// numeric compares only when both sides are numbers.
func numeric(cmp func(l, r float64) bool) comparator {
	return func(l, r any) bool {
		lf, lok := l.(float64)
		rf, rok := r.(float64)
		return lok && rok && cmp(lf, rf)
	}
}

func contains(l, r any) bool {
	if l == nil || r == nil {
		return false
	}
	return strings.Contains(fmt.Sprint(l), fmt.Sprint(r))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
