package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveSmallObjects(t *testing.T) {
	mask := newMask(100, 100)
	defer mask.Close()
	fillRectMask(&mask, 10, 10, 40, 40, 255) // 900 px, kept
	fillRectMask(&mask, 70, 70, 73, 73, 255) // 9 px, removed

	removeSmallObjects(&mask, 100)

	assert.Equal(t, uint8(255), mask.GetUCharAt(20, 20))
	assert.Equal(t, uint8(0), mask.GetUCharAt(71, 71))
	assert.Equal(t, 900, countMask(mask))
}

func TestFillSmallHoles(t *testing.T) {
	mask := newMask(100, 100)
	defer mask.Close()
	fillRectMask(&mask, 0, 0, 100, 100, 255)
	fillRectMask(&mask, 40, 40, 45, 45, 0) // 25 px interior hole
	fillRectMask(&mask, 0, 60, 3, 70, 0)   // notch touching the border

	fillSmallHoles(&mask, 100)

	assert.Equal(t, uint8(255), mask.GetUCharAt(42, 42), "interior hole filled")
	assert.Equal(t, uint8(0), mask.GetUCharAt(65, 1), "border notch untouched")
}

func TestFillSmallHolesRespectsLimit(t *testing.T) {
	mask := newMask(100, 100)
	defer mask.Close()
	fillRectMask(&mask, 0, 0, 100, 100, 255)
	fillRectMask(&mask, 20, 20, 50, 50, 0) // 900 px hole, above the limit

	fillSmallHoles(&mask, 100)
	assert.Equal(t, uint8(0), mask.GetUCharAt(30, 30))
}

func TestBinaryCloseBridgesGap(t *testing.T) {
	mask := newMask(60, 60)
	defer mask.Close()
	fillRectMask(&mask, 10, 10, 30, 50, 255)
	fillRectMask(&mask, 32, 10, 52, 50, 255) // 2 px vertical slit at x=30..31

	binaryClose(&mask, 3)
	assert.Equal(t, uint8(255), mask.GetUCharAt(30, 30), "slit bridged")
}

func TestBinaryOpenRemovesSpeckle(t *testing.T) {
	mask := newMask(60, 60)
	defer mask.Close()
	fillRectMask(&mask, 10, 10, 40, 40, 255)
	mask.SetUCharAt(50, 50, 255) // isolated pixel

	binaryOpen(&mask, 2)
	assert.Equal(t, uint8(0), mask.GetUCharAt(50, 50))
	assert.Equal(t, uint8(255), mask.GetUCharAt(25, 25))
}

func TestZeroRadiusIsNoop(t *testing.T) {
	mask := newMask(20, 20)
	defer mask.Close()
	fillRectMask(&mask, 5, 5, 10, 10, 255)
	before := countMask(mask)

	binaryClose(&mask, 0)
	binaryOpen(&mask, 0)
	removeSmallObjects(&mask, 0)
	fillSmallHoles(&mask, 0)

	assert.Equal(t, before, countMask(mask))
}
