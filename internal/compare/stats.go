package compare

import (
	"math"
	"sort"
)

// Statistical primitives for the comparison engine. The p-value machinery
// (normal CDF, regularized incomplete beta for Student's t, hypergeometric
// tails for Fisher's exact test) is implemented here directly on math
// because the module carries no numerical dependency.

func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// welchTTest compares two sample means without assuming equal variances.
// Returns the t statistic and the two-sided p-value. Requires at least two
// observations per side with non-zero pooled variance.
func welchTTest(a, b []float64) (t, p float64, ok bool) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0, 0, false
	}

	ma, mb := mean(a), mean(b)
	va, vb := variance(a, ma), variance(b, mb)

	se2 := va/na + vb/nb
	if se2 == 0 {
		if ma == mb {
			return 0, 1, true
		}
		return math.Inf(sign(ma - mb)), 0, true
	}

	t = (ma - mb) / math.Sqrt(se2)

	// Welch-Satterthwaite degrees of freedom.
	df := se2 * se2 / ((va*va)/(na*na*(na-1)) + (vb*vb)/(nb*nb*(nb-1)))
	p = tTwoSidedP(t, df)
	return t, p, true
}

// tTwoSidedP is the two-sided tail probability of Student's t with df
// degrees of freedom, via the regularized incomplete beta function.
func tTwoSidedP(t, df float64) float64 {
	if math.IsInf(t, 0) {
		return 0
	}
	x := df / (df + t*t)
	return regIncBeta(df/2, 0.5, x)
}

// mannWhitneyU performs the two-sided Mann-Whitney U test with the normal
// approximation and tie correction.
func mannWhitneyU(a, b []float64) (u, p float64, ok bool) {
	na, nb := float64(len(a)), float64(len(b))
	if na == 0 || nb == 0 {
		return 0, 0, false
	}

	type obs struct {
		v     float64
		fromA bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	// Midranks, accumulating the tie correction term sum(t^3 - t).
	ranks := make([]float64, len(all))
	tieTerm := 0.0
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		r := float64(i+j+1) / 2 // average of 1-based ranks i+1..j
		for k := i; k < j; k++ {
			ranks[k] = r
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}

	ra := 0.0
	for i, o := range all {
		if o.fromA {
			ra += ranks[i]
		}
	}

	u = ra - na*(na+1)/2

	n := na + nb
	mu := na * nb / 2
	sigma2 := na * nb / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if sigma2 <= 0 {
		// All observations identical.
		return u, 1, true
	}
	z := (u - mu) / math.Sqrt(sigma2)
	p = 2 * normalCDF(-math.Abs(z))
	if p > 1 {
		p = 1
	}
	return u, p, true
}

// chiSquare2x2 tests a pass/fail contingency table. lowExpected reports
// whether any expected cell count falls below 5, in which case the caller
// should prefer Fisher's exact test.
func chiSquare2x2(passA, failA, passB, failB int) (chi2, p float64, lowExpected, ok bool) {
	rowA := float64(passA + failA)
	rowB := float64(passB + failB)
	colPass := float64(passA + passB)
	colFail := float64(failA + failB)
	n := rowA + rowB
	if rowA == 0 || rowB == 0 || n == 0 {
		return 0, 0, false, false
	}
	if colPass == 0 || colFail == 0 {
		// Degenerate table: identical outcomes on both sides.
		return 0, 1, false, true
	}

	cells := [4]struct{ obs, exp float64 }{
		{float64(passA), rowA * colPass / n},
		{float64(failA), rowA * colFail / n},
		{float64(passB), rowB * colPass / n},
		{float64(failB), rowB * colFail / n},
	}
	for _, c := range cells {
		if c.exp < 5 {
			lowExpected = true
		}
		d := c.obs - c.exp
		chi2 += d * d / c.exp
	}

	// One degree of freedom: P(X >= chi2) = erfc(sqrt(chi2/2)).
	p = math.Erfc(math.Sqrt(chi2 / 2))
	return chi2, p, lowExpected, true
}

// fisherExact computes the two-sided Fisher exact test for a 2x2 table by
// summing hypergeometric probabilities no larger than the observed one.
func fisherExact(passA, failA, passB, failB int) (odds, p float64, ok bool) {
	rowA := passA + failA
	rowB := passB + failB
	col := passA + passB
	n := rowA + rowB
	if rowA == 0 || rowB == 0 || n == 0 {
		return 0, 0, false
	}

	if failA == 0 || passB == 0 {
		odds = math.Inf(1)
		if passA == 0 || failB == 0 {
			odds = math.NaN()
		}
	} else {
		odds = float64(passA*failB) / float64(failA*passB)
	}

	observed := hypergeomLogP(passA, rowA, col, n)

	lo := col - rowB
	if lo < 0 {
		lo = 0
	}
	hi := col
	if hi > rowA {
		hi = rowA
	}

	const eps = 1e-9
	p = 0
	for k := lo; k <= hi; k++ {
		lp := hypergeomLogP(k, rowA, col, n)
		if lp <= observed+eps {
			p += math.Exp(lp)
		}
	}
	if p > 1 {
		p = 1
	}
	return odds, p, true
}

// hypergeomLogP is log P(X = k) for X ~ Hypergeometric(n, col, rowA).
func hypergeomLogP(k, rowA, col, n int) float64 {
	return logChoose(col, k) + logChoose(n-col, rowA-k) - logChoose(n, rowA)
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return logFactorial(n) - logFactorial(k) - logFactorial(n-k)
}

func logFactorial(n int) float64 {
	v, _ := math.Lgamma(float64(n) + 1)
	return v
}

// regIncBeta is the regularized incomplete beta function I_x(a, b),
// computed with the continued-fraction expansion.
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lga, _ := math.Lgamma(a)
	lgb, _ := math.Lgamma(b)
	lgab, _ := math.Lgamma(a + b)
	front := math.Exp(lgab - lga - lgb + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

// betaCF evaluates the continued fraction for the incomplete beta function
// (modified Lentz's method).
func betaCF(a, b, x float64) float64 {
	const (
		maxIter = 200
		epsilon = 3e-14
		tiny    = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		m2 := float64(2 * m)
		aa := float64(m) * (b - float64(m)) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + float64(m)) * (qab + float64(m)) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the sample variance about a precomputed mean.
func variance(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
