package sequences

import (
	"context"
	"fmt"
)

// ctxCheckInterval is how many window products are processed between
// cancellation checks inside a single position.
const ctxCheckInterval = 1024

// productSpace encodes joint label assignments of a window as mixed-radix
// integers. The window ending at pos spans [pos-L, pos+R]; the rightmost
// position is the least significant digit, and digit values index into
// tags[curPos].
type productSpace struct {
	length, left, right int
	padLength           int
	tags                [][]int
	tagNum              []int
	productSizes        []int
}

func newProductSpace(model SequenceModel) *productSpace {
	ps := &productSpace{
		length: model.Length(),
		left:   model.LeftWindow(),
		right:  model.RightWindow(),
	}
	ps.padLength = ps.length + ps.left + ps.right
	ps.tags = make([][]int, ps.padLength)
	ps.tagNum = make([]int, ps.padLength)
	for pos := range ps.padLength {
		ps.tags[pos] = model.PossibleValues(pos)
		ps.tagNum[pos] = len(ps.tags[pos])
	}

	// Shift the window along the padded sequence: divide out the radix that
	// falls off the left edge and multiply in the new right edge.
	ps.productSizes = make([]int, ps.padLength)
	span := ps.left + ps.right
	cur := 1
	for i := 0; i < span && i < ps.padLength; i++ {
		cur *= ps.tagNum[i]
	}
	for pos := span; pos < ps.padLength; pos++ {
		if pos > span {
			cur /= ps.tagNum[pos-span-1]
		}
		cur *= ps.tagNum[pos]
		ps.productSizes[pos-ps.right] = cur
	}
	return ps
}

// first and last real positions.
func (ps *productSpace) first() int { return ps.left }
func (ps *productSpace) last() int  { return ps.left + ps.length - 1 }

// stride is the place value of curPos's digit in the window ending at pos.
func (ps *productSpace) stride(pos, curPos int) int {
	s := 1
	for p := pos + ps.right; p > curPos; p-- {
		s *= ps.tagNum[p]
	}
	return s
}

// digit extracts curPos's digit from a product of the window ending at pos.
func (ps *productSpace) digit(pos, product, curPos int) int {
	return (product / ps.stride(pos, curPos)) % ps.tagNum[curPos]
}

// leftDigit is the digit of the window's leftmost position.
func (ps *productSpace) leftDigit(pos, product int) int {
	return product / (ps.productSizes[pos] / ps.tagNum[pos-ps.left])
}

// predecessor is the product at pos-1 whose window agrees with product on the
// shared positions and carries predDigit at the position that falls off.
func (ps *productSpace) predecessor(pos, product, predDigit int) int {
	last := ps.tagNum[pos+ps.right]
	factor := ps.productSizes[pos] / last
	return predDigit*factor + product/last
}

// predecessorCount is the number of predecessors of any product at pos.
func (ps *productSpace) predecessorCount(pos int) int {
	return ps.tagNum[pos-ps.left-1]
}

// decode writes the labels of product into dst over the window ending at pos
// and returns the stride of pos's own digit.
func (ps *productSpace) decode(pos, product int, dst []int) int {
	p := product
	shift := 1
	for curPos := pos + ps.right; curPos >= pos-ps.left; curPos-- {
		dst[curPos] = ps.tags[curPos][p%ps.tagNum[curPos]]
		p /= ps.tagNum[curPos]
		if curPos > pos {
			shift *= ps.tagNum[curPos]
		}
	}
	return shift
}

// decodeTail writes the labels of the final window (ending at the last real
// position) into dst.
func (ps *productSpace) decodeTail(product int, dst []int) {
	for p := ps.padLength - 1; p >= ps.length-1 && p >= 0; p-- {
		dst[p] = ps.tags[p][product%ps.tagNum[p]]
		product /= ps.tagNum[p]
	}
}

// windowScores scores every joint assignment of every real window. One
// ScoresOf call covers all labels of the current position: it is made when
// the current digit is 0 and its scores are scattered to product+t*shift.
func (ps *productSpace) windowScores(ctx context.Context, model SequenceModel) ([][]float64, error) {
	windowScore := make([][]float64, ps.padLength)
	tempTags := make([]int, ps.padLength)
	for pos := ps.first(); pos <= ps.last(); pos++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scoring windows: %w", err)
		}
		windowScore[pos] = make([]float64, ps.productSizes[pos])
		fillFirst(tempTags, ps.tags)
		for product := range ps.productSizes[pos] {
			if product%ctxCheckInterval == ctxCheckInterval-1 {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("scoring windows: %w", err)
				}
			}
			shift := ps.decode(pos, product, tempTags)
			if (product/shift)%ps.tagNum[pos] != 0 {
				continue
			}
			scores := model.ScoresOf(tempTags, pos)
			for t := range ps.tagNum[pos] {
				windowScore[pos][product+t*shift] = scores[t]
			}
		}
	}
	return windowScore, nil
}

// fillFirst sets every position to its first possible value.
func fillFirst(dst []int, tags [][]int) {
	for pos := range dst {
		if len(tags[pos]) > 0 {
			dst[pos] = tags[pos][0]
		}
	}
}
