package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"

	"trades-selfplay/internal/dataset"
)

// ErrNotTrained 表示模型尚无参数。
var ErrNotTrained = errors.New("model: 模型未训练")

// ErrNoSamples 表示过滤后没有可用样本。
var ErrNoSamples = errors.New("model: 没有可用的训练样本")

// ErrSingularSystem 表示正规方程无法求解。
var ErrSingularSystem = errors.New("model: 正规方程奇异")

const defaultRidge = 1e-6

// LinearParams 为线性模型的持久化格式。
type LinearParams struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Loss      float64   `json:"loss"`
}

// LinearModel 为最小二乘线性回归，参数由自身的读写锁保护。
type LinearModel struct {
	mu     sync.RWMutex
	params *LinearParams
	ridge  float64
}

// NewLinearModel 创建未训练的线性模型。
func NewLinearModel() *LinearModel {
	return &LinearModel{ridge: defaultRidge}
}

// Infer 未训练时返回 NaN。
func (m *LinearModel) Infer(points []dataset.Point) []float64 {
	m.mu.RLock()
	params := m.params
	m.mu.RUnlock()

	out := make([]float64, len(points))
	if params == nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i, p := range points {
		out[i] = predict(params, p)
	}
	return out
}

// Train 对中心化数据做带微小岭项的最小二乘，截距不参与惩罚。非有限样本会被忽略。
func (m *LinearModel) Train(samples []Sample) error {
	const k = dataset.PointSize

	var (
		xs [][k]float64
		ys []float64
	)
	for _, s := range samples {
		if !s.Point.IsFinite() || math.IsNaN(s.Utility) || math.IsInf(s.Utility, 0) {
			continue
		}
		xs = append(xs, s.Point.Vector())
		ys = append(ys, s.Utility)
	}
	if len(xs) == 0 {
		return ErrNoSamples
	}

	n := float64(len(xs))
	var xMean [k]float64
	var yMean float64
	for i := range xs {
		for j := 0; j < k; j++ {
			xMean[j] += xs[i][j]
		}
		yMean += ys[i]
	}
	for j := 0; j < k; j++ {
		xMean[j] /= n
	}
	yMean /= n

	design := mat.NewDense(len(xs), k, nil)
	target := mat.NewVecDense(len(xs), nil)
	for i := range xs {
		for j := 0; j < k; j++ {
			design.Set(i, j, xs[i][j]-xMean[j])
		}
		target.SetVec(i, ys[i]-yMean)
	}

	coef, err := m.solveRidge(design, target)
	if err != nil {
		return err
	}

	intercept := yMean
	for j := 0; j < k; j++ {
		intercept -= coef[j] * xMean[j]
	}

	params := &LinearParams{Coef: coef[:], Intercept: intercept}
	var sse float64
	for i := range xs {
		d := predict(params, dataset.PointFromVector(xs[i])) - ys[i]
		sse += d * d
	}
	params.Loss = sse / n

	m.mu.Lock()
	m.params = params
	m.mu.Unlock()
	return nil
}

// Save 以 JSON 写出参数。未训练的模型写出空系数，加载后仍为未训练状态。
func (m *LinearModel) Save(path string) error {
	m.mu.RLock()
	params := m.params
	m.mu.RUnlock()
	if params == nil {
		params = &LinearParams{Coef: []float64{}}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("model: 序列化参数失败: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("model: 写入参数文件失败: %w", err)
	}
	return nil
}

// Load 从 JSON 文件读取参数，文件不存在或格式错误均返回错误。
func (m *LinearModel) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("model: 读取参数文件失败: %w", err)
	}
	var params LinearParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("model: 解析参数文件 %s 失败: %w", path, err)
	}
	switch len(params.Coef) {
	case 0:
		m.mu.Lock()
		m.params = nil
		m.mu.Unlock()
		return nil
	case dataset.PointSize:
	default:
		return fmt.Errorf("model: 参数文件 %s 系数个数 %d，期望 %d", path, len(params.Coef), dataset.PointSize)
	}

	m.mu.Lock()
	m.params = &params
	m.mu.Unlock()
	return nil
}

// Snapshot 返回参数副本。
func (m *LinearModel) Snapshot() (LinearParams, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.params == nil {
		return LinearParams{}, ErrNotTrained
	}
	out := *m.params
	out.Coef = append([]float64(nil), m.params.Coef...)
	return out, nil
}

// Params 返回 JSON 形式的参数，未训练时为 {}。
func (m *LinearModel) Params() string {
	params, err := m.Snapshot()
	if err != nil {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Loss 返回训练集均方误差，未训练时为 NaN。
func (m *LinearModel) Loss() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.params == nil {
		return math.NaN()
	}
	return m.params.Loss
}

func predict(params *LinearParams, p dataset.Point) float64 {
	v := p.Vector()
	y := params.Intercept
	for j := range v {
		y += params.Coef[j] * v[j]
	}
	return y
}

// solveRidge 以 Cholesky 分解求解 (XᵀX + λ·(1+diag)) β = Xᵀy，X 与 y 已中心化。
func (m *LinearModel) solveRidge(design *mat.Dense, target *mat.VecDense) ([dataset.PointSize]float64, error) {
	const k = dataset.PointSize
	var coef [k]float64

	gram := mat.NewSymDense(k, nil)
	gram.SymOuterK(1, design.T())
	for r := 0; r < k; r++ {
		v := gram.At(r, r)
		gram.SetSym(r, r, v+m.ridge*(1+v))
	}
	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return coef, ErrSingularSystem
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return coef, fmt.Errorf("%w: %v", ErrSingularSystem, err)
		}
	}
	for j := 0; j < k; j++ {
		coef[j] = beta.AtVec(j)
		if math.IsNaN(coef[j]) || math.IsInf(coef[j], 0) {
			return coef, ErrSingularSystem
		}
	}
	return coef, nil
}
