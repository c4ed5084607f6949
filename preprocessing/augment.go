package preprocessing

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/YuminosukeSato/medimg/core/tensor"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// RandomAugmenter はバッチ全体に対してランダムな反転と平行移動を行う
// 乱数生成器はシードで初期化されるため、同じシードなら同じ変換列になる
type RandomAugmenter struct {
	FlipHorizontal bool
	FlipVertical   bool
	// MaxShift は幅・高さに対する平行移動量の上限（割合）
	MaxShift float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAugmenter は新しいRandomAugmenterを作成する
func NewRandomAugmenter(flipH, flipV bool, maxShift float64, seed uint64) *RandomAugmenter {
	return &RandomAugmenter{
		FlipHorizontal: flipH,
		FlipVertical:   flipV,
		MaxShift:       maxShift,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

type sampleOp struct {
	flipH, flipV bool
	dx, dy       int
}

// Apply は [N, H, W, C] のバッチに変換を適用した新しいテンソルを返す
// 空いた領域は0で埋める
func (a *RandomAugmenter) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.NewDimensionError("RandomAugmenter.Apply", 4, x.Rank(), 0)
	}
	n, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	maxDx := int(math.Floor(a.MaxShift * float64(w)))
	maxDy := int(math.Floor(a.MaxShift * float64(h)))

	// 乱数はロック内でまとめて引き、変換自体はロック外で行う
	ops := make([]sampleOp, n)
	a.mu.Lock()
	for i := range ops {
		if a.FlipHorizontal {
			ops[i].flipH = a.rng.IntN(2) == 1
		}
		if a.FlipVertical {
			ops[i].flipV = a.rng.IntN(2) == 1
		}
		if maxDx > 0 {
			ops[i].dx = a.rng.IntN(2*maxDx+1) - maxDx
		}
		if maxDy > 0 {
			ops[i].dy = a.rng.IntN(2*maxDy+1) - maxDy
		}
	}
	a.mu.Unlock()

	out := tensor.New(n, h, w, c)
	for i, op := range ops {
		src := x.Sample(i).Data()
		dst := out.Sample(i).Data()
		for y := 0; y < h; y++ {
			sy := y - op.dy
			if sy < 0 || sy >= h {
				continue
			}
			if op.flipV {
				sy = h - 1 - sy
			}
			for xx := 0; xx < w; xx++ {
				sx := xx - op.dx
				if sx < 0 || sx >= w {
					continue
				}
				if op.flipH {
					sx = w - 1 - sx
				}
				copy(dst[(y*w+xx)*c:(y*w+xx+1)*c], src[(sy*w+sx)*c:(sy*w+sx+1)*c])
			}
		}
	}
	return out, nil
}
