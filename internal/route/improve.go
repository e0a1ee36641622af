package route

import "freightpool/internal/model"

const maxImprovePasses = 25

// improve applies relocate and 2-opt moves while they shorten the route and
// keep it feasible. dist is the current distance of seq.
func (b *Builder) improve(all []model.Shipment, seq []Visit, dist float64, lim Limits, depot *model.Location) ([]Visit, float64) {
	n := len(seq)
	if n < 3 {
		return seq, dist
	}
	cur := append([]Visit(nil), seq...)
	buf := make([]Visit, n)
	for pass := 0; pass < maxImprovePasses; pass++ {
		improved := false
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				relocate(buf, cur, i, j)
				if ev, f := b.schedule(all, buf, lim, depot, nil); f.ok() && ev.dist < dist-1e-6 {
					copy(cur, buf)
					dist = ev.dist
					improved = true
				}
			}
		}
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				twoOptSwap(buf, cur, i, k)
				if ev, f := b.schedule(all, buf, lim, depot, nil); f.ok() && ev.dist < dist-1e-6 {
					copy(cur, buf)
					dist = ev.dist
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return cur, dist
}

// relocate writes src with element i moved to position j into dst.
func relocate(dst, src []Visit, i, j int) {
	v := src[i]
	k := 0
	for x := range src {
		if x == i {
			continue
		}
		if k == j {
			dst[k] = v
			k++
		}
		dst[k] = src[x]
		k++
	}
	if k == j {
		dst[k] = v
	}
}

// twoOptSwap writes src with the segment i..k reversed into dst.
func twoOptSwap(dst, src []Visit, i, k int) {
	copy(dst, src[:i])
	pos := i
	for j := k; j >= i; j-- {
		dst[pos] = src[j]
		pos++
	}
	copy(dst[pos:], src[k+1:])
}
