package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStackScalable(t *testing.T) {
	five := ItemStack{Kind: "DIAMOND", Quantity: 5}
	assert.True(t, five.Scalable(0))
	assert.True(t, five.Scalable(math.MaxInt/5))
	assert.False(t, five.Scalable(math.MaxInt/5+1))
	assert.False(t, five.Scalable(1<<62))
	assert.False(t, five.Scalable(-1))
	assert.True(t, ItemStack{}.Scalable(math.MaxInt))
	assert.Equal(t, ItemStack{Kind: "DIAMOND", Quantity: 15}, five.Times(3))
}
