package repo

import (
	"fmt"
	"strings"

	"newsletter/pkg/goutil"
)

type LogicalOp string

const (
	LogicalOpAnd LogicalOp = "AND"
	LogicalOpOr  LogicalOp = "OR"
)

type Op string

const (
	OpEq    Op = "="
	OpNotEq Op = "!="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpIn    Op = "IN"
)

type Condition struct {
	Field         string
	Op            Op
	Value         interface{}
	NextLogicalOp LogicalOp
}

// Pagination carries the requested page on the way in and the page
// actually served, with HasNext and Total, on the way out.
type Pagination struct {
	Limit   *uint32
	Page    *uint32
	HasNext *bool
	Total   *int64
}

func (p *Pagination) GetLimit() uint32 {
	if p != nil && p.Limit != nil {
		return *p.Limit
	}
	return 0
}

func (p *Pagination) GetPage() uint32 {
	if p != nil && p.Page != nil {
		return *p.Page
	}
	return 0
}

func (p *Pagination) GetHasNext() bool {
	if p != nil && p.HasNext != nil {
		return *p.HasNext
	}
	return false
}

func (p *Pagination) GetTotal() int64 {
	if p != nil && p.Total != nil {
		return *p.Total
	}
	return 0
}

type Filter struct {
	Conditions []*Condition
	Pagination *Pagination
}

// ToSqlWithArgs renders the conditions of f into a where clause.
// Conditions with a nil value are skipped.
func ToSqlWithArgs(f *Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}

	var (
		parts = make([]string, 0, len(f.Conditions))
		ops   = make([]LogicalOp, 0, len(f.Conditions))
		args  = make([]interface{}, 0, len(f.Conditions))
	)
	for _, condition := range f.Conditions {
		if goutil.IsNil(condition.Value) {
			continue
		}

		switch condition.Op {
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s IN ?", condition.Field))
		case OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte:
			parts = append(parts, fmt.Sprintf("%s %s ?", condition.Field, condition.Op))
		default:
			continue
		}
		args = append(args, condition.Value)

		op := condition.NextLogicalOp
		if op == "" {
			op = LogicalOpAnd
		}
		ops = append(ops, op)
	}

	var sb strings.Builder
	for i, part := range parts {
		if i > 0 {
			sb.WriteString(fmt.Sprintf(" %s ", ops[i-1]))
		}
		sb.WriteString(part)
	}

	return sb.String(), args
}
