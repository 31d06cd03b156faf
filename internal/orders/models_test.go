package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProductDemand_SumsDuplicateLines(t *testing.T) {
	o := Order{Items: []OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 3},
	}}

	assert.Equal(t, map[int64]int{1: 5, 2: 1}, o.ProductDemand())
}

func TestProductValidate(t *testing.T) {
	ok := Product{ID: 1, Price: decimal.RequireFromString("9.90"), StockQuantity: 0}
	assert.NoError(t, ok.Validate())

	neg := ok
	neg.StockQuantity = -1
	assert.ErrorIs(t, neg.Validate(), ErrNegativeStock)

	cheap := ok
	cheap.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, cheap.Validate(), ErrNegativePrice)
}
