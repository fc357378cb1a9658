package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// Set 为一次迭代使用的四个模型，按 Type.Index 索引。
type Set struct {
	iteration int
	outputDir string
	models    [NumTypes]Model
}

// NewSet iteration < 0 时为随机基线，否则为待训练/加载的线性模型。
func NewSet(iteration int, outputDir string) *Set {
	s := &Set{iteration: iteration, outputDir: outputDir}
	for i := range s.models {
		if iteration < 0 {
			s.models[i] = NewRandomModel()
		} else {
			s.models[i] = NewLinearModel()
		}
	}
	return s
}

// NewSetWithModels 使用调用方提供的模型构造集合，主要用于测试与自定义策略。
func NewSetWithModels(iteration int, outputDir string, models [NumTypes]Model) *Set {
	return &Set{iteration: iteration, outputDir: outputDir, models: models}
}

// Iteration 返回集合所属的迭代序号。
func (s *Set) Iteration() int {
	return s.iteration
}

// Model 返回指定类型的模型。
func (s *Set) Model(t Type) Model {
	return s.models[t.Index()]
}

// Path 返回 <output_dir>/<iteration>_<type>.json。
func (s *Set) Path(iteration int, t Type) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("%d_%s.json", iteration, t))
}

// Load 加载本迭代的全部模型，随机基线无需文件。
func (s *Set) Load() error {
	if s.iteration < 0 {
		return nil
	}
	for _, t := range AllTypes() {
		if err := s.models[t.Index()].Load(s.Path(s.iteration, t)); err != nil {
			return fmt.Errorf("model: 加载 %s 失败: %w", t, err)
		}
	}
	return nil
}

// LoadWithClosingFromPrevious 开仓模型取自本迭代，平仓模型取自上一迭代。
// 平仓模型是在上一迭代的开仓策略下训练的，两者配合回测。
func (s *Set) LoadWithClosingFromPrevious() error {
	for _, t := range AllTypes() {
		iteration := s.iteration
		if t.Action == ActionClosing {
			iteration--
		}
		if iteration < 0 {
			continue
		}
		if err := s.models[t.Index()].Load(s.Path(iteration, t)); err != nil {
			return fmt.Errorf("model: 加载 %s (迭代 %d) 失败: %w", t, iteration, err)
		}
	}
	return nil
}

// Save 创建输出目录并保存全部模型，所有错误会被合并返回。
func (s *Set) Save() error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("model: 创建输出目录失败: %w", err)
	}
	var errs error
	for _, t := range AllTypes() {
		if err := s.models[t.Index()].Save(s.Path(s.iteration, t)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("model: 保存 %s 失败: %w", t, err))
		}
	}
	return errs
}

// Summary 每行输出 <type>: <params>。
func (s *Set) Summary() string {
	var b strings.Builder
	for _, t := range AllTypes() {
		fmt.Fprintf(&b, "%s: %s\n", t, s.models[t.Index()].Params())
	}
	return b.String()
}
