package md

// Extremes tracks the highest and lowest price seen since the last reset.
type Extremes struct {
	max float64
	min float64
}

func NewExtremes(price float64) Extremes {
	return Extremes{max: price, min: price}
}

func (e *Extremes) Reset(price float64) {
	e.max = price
	e.min = price
}

func (e *Extremes) Observe(price float64) {
	if price > e.max {
		e.max = price
	}
	if price < e.min {
		e.min = price
	}
}

func (e Extremes) Current() (float64, float64) {
	return e.max, e.min
}

func (e Extremes) Max() float64 { return e.max }
func (e Extremes) Min() float64 { return e.min }
