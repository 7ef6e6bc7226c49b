package costquery

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
)

// Dimension matches any of values for a Cost Explorer dimension.
func Dimension(key string, values ...string) *costexplorer.Expression {
	return &costexplorer.Expression{
		Dimensions: &costexplorer.DimensionValues{
			Key:    aws.String(key),
			Values: aws.StringSlice(values),
		},
	}
}

// Tag matches any of values for a cost allocation tag.
func Tag(key string, values ...string) *costexplorer.Expression {
	return &costexplorer.Expression{
		Tags: &costexplorer.TagValues{
			Key:    aws.String(key),
			Values: aws.StringSlice(values),
		},
	}
}

// CostCategory matches any of values for a cost category.
func CostCategory(key string, values ...string) *costexplorer.Expression {
	return &costexplorer.Expression{
		CostCategories: &costexplorer.CostCategoryValues{
			Key:    aws.String(key),
			Values: aws.StringSlice(values),
		},
	}
}

// And joins expressions. Cost Explorer rejects an And with a single
// operand, so one expression is returned as is and nil ones are dropped.
func And(exprs ...*costexplorer.Expression) *costexplorer.Expression {
	var operands []*costexplorer.Expression
	for _, e := range exprs {
		if e != nil {
			operands = append(operands, e)
		}
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return &costexplorer.Expression{And: operands}
}

// Not negates an expression.
func Not(expr *costexplorer.Expression) *costexplorer.Expression {
	return &costexplorer.Expression{Not: expr}
}

// ExcludeCredits drops credit and refund line items.
func ExcludeCredits() *costexplorer.Expression {
	return Not(CostCategory("ChargeType", "Credit", "Refund"))
}
