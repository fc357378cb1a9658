package dataset

import "math"

// PointSize 为特征向量的维度。
const PointSize = 3

// Point 为某一时刻的特征向量。
type Point struct {
	F1 float64 `json:"f1"`
	F2 float64 `json:"f2"`
	F4 float64 `json:"f4"`
}

// Vector 按固定顺序 (F1, F2, F4) 展开特征。
func (p Point) Vector() [PointSize]float64 {
	return [PointSize]float64{p.F1, p.F2, p.F4}
}

// PointFromVector 为 Vector 的逆变换。
func PointFromVector(v [PointSize]float64) Point {
	return Point{F1: v[0], F2: v[1], F4: v[2]}
}

// IsFinite 当全部特征均为有限值时返回 true。缺失数据以 NaN 表示。
func (p Point) IsFinite() bool {
	for _, x := range p.Vector() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// NaNPoint 返回全部特征为 NaN 的点。
func NaNPoint() Point {
	nan := math.NaN()
	return Point{F1: nan, F2: nan, F4: nan}
}

// Bar 为一条带时间戳的行情记录。
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	MidPrice  float64 `json:"mid_price"`
	Point     Point   `json:"point"`
}

// Dataset 为按时间排序的只读行情序列，加载后在各 goroutine 间共享，不再修改。
type Dataset []Bar

// Len 返回数据条数。
func (d Dataset) Len() int {
	return len(d)
}

// FiniteCount 返回特征有效的记录数量。
func (d Dataset) FiniteCount() int {
	n := 0
	for i := range d {
		if d[i].Point.IsFinite() {
			n++
		}
	}
	return n
}
