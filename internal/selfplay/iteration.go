package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-selfplay/internal/config"
	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
)

// ErrNoFiniteData 数据集中没有任何有效特征。
var ErrNoFiniteData = errors.New("selfplay: 数据集没有有效特征")

type samples [model.NumTypes][]model.Sample

// Result 为一次迭代的结果摘要。
type Result struct {
	Index        int                 `json:"index"`
	Samples      [model.NumTypes]int `json:"samples"`
	TotalSamples int                 `json:"total_samples"`
	Stat         StatSnapshot        `json:"stat"`
	Losses       map[string]float64  `json:"losses"`
	Params       map[string]string   `json:"params"`
	Elapsed      time.Duration       `json:"elapsed"`
	// StalledSides 为平仓模型没有样本的方向，下一迭代该方向的对局会全部作废。
	StalledSides []string `json:"stalled_sides,omitempty"`
}

// Summary 输出平均对局长度、平均预测值与各模型参数。
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "iteration %d\n", r.Index)
	fmt.Fprintf(&b, "mean play length: %f\n", r.Stat.MeanPlayLength)
	fmt.Fprintf(&b, "mean prediction: %f\n", r.Stat.MeanPrediction)
	for _, t := range model.AllTypes() {
		fmt.Fprintf(&b, "%s: samples=%d loss=%g params=%s\n",
			t, r.Samples[t.Index()], r.Losses[t.String()], r.Params[t.String()])
	}
	return b.String()
}

// Iteration 在上一迭代的模型下生成样本，并训练本迭代的模型。
type Iteration struct {
	index  int
	data   dataset.Dataset
	cfg    config.IterationConfig
	input  *model.Set
	output *model.Set
	stat   *IterationStat
	logger *zap.Logger
}

// NewIteration 加载 index-1 的模型作为行为策略；迭代 0 使用随机策略。
func NewIteration(index int, data dataset.Dataset, cfg config.IterationConfig, logger *zap.Logger) (*Iteration, error) {
	input := model.NewSet(index-1, cfg.OutputDir)
	if err := input.Load(); err != nil {
		return nil, fmt.Errorf("selfplay: 加载迭代 %d 的模型失败: %w", index-1, err)
	}
	return NewIterationWithModels(index, data, cfg, input, model.NewSet(index, cfg.OutputDir), logger)
}

// NewIterationWithModels 使用给定的输入与输出模型集合。
func NewIterationWithModels(index int, data dataset.Dataset, cfg config.IterationConfig, input, output *model.Set, logger *zap.Logger) (*Iteration, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("selfplay: concurrency 必须大于0")
	}
	if cfg.MaxPlayDurationInBars <= 0 {
		return nil, fmt.Errorf("selfplay: max_play_duration_in_bars 必须大于0")
	}
	if cfg.Mode == config.IterationModeBatched && cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("selfplay: batched 模式下 batch_size 必须大于0")
	}
	if len(data) <= minDatasetLen {
		return nil, fmt.Errorf("%w: %d 条", ErrDatasetTooShort, len(data))
	}
	if data.FiniteCount() == 0 {
		return nil, ErrNoFiniteData
	}

	return &Iteration{
		index:  index,
		data:   data,
		cfg:    cfg,
		input:  input,
		output: output,
		stat:   NewIterationStat(),
		logger: logger.With(zap.Int("iteration", index)),
	}, nil
}

// Stat 返回实时统计，可在运行中读取。
func (it *Iteration) Stat() *IterationStat {
	return it.stat
}

func (it *Iteration) Index() int {
	return it.index
}

// Output 返回本迭代训练的模型集合。
func (it *Iteration) Output() *model.Set {
	return it.output
}

// Run 启动 concurrency 个 worker 直至完成的对局数达到 n_plays，随后训练并保存模型。
// n_plays 是尽力而为的目标，可能略微超出。
func (it *Iteration) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	it.logger.Info("开始迭代",
		zap.Int("n_plays", it.cfg.NPlays),
		zap.Int("concurrency", it.cfg.Concurrency),
		zap.String("mode", it.cfg.Mode),
	)

	perWorker := make([]samples, it.cfg.Concurrency)
	group, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < it.cfg.Concurrency; w++ {
		group.Go(func() error {
			local, err := it.runWorker(groupCtx, w)
			if err != nil {
				return err
			}
			perWorker[w] = local
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var merged samples
	for _, local := range perWorker {
		for i := range local {
			merged[i] = append(merged[i], local[i]...)
		}
	}

	result := Result{
		Index:  it.index,
		Stat:   it.stat.Snapshot(),
		Losses: make(map[string]float64, model.NumTypes),
		Params: make(map[string]string, model.NumTypes),
	}
	for _, t := range model.AllTypes() {
		slice := merged[t.Index()]
		result.Samples[t.Index()] = len(slice)
		result.TotalSamples += len(slice)
		if len(slice) == 0 {
			it.logger.Warn("模型没有样本，跳过训练", zap.String("model", t.String()))
			continue
		}
		m := it.output.Model(t)
		if err := m.Train(slice); err != nil {
			return Result{}, fmt.Errorf("selfplay: 训练 %s 失败: %w", t, err)
		}
		result.Losses[t.String()] = m.Loss()
		it.logger.Info("模型训练完成",
			zap.String("model", t.String()),
			zap.Int("samples", len(slice)),
			zap.Float64("loss", m.Loss()),
		)
	}
	for _, t := range model.AllTypes() {
		result.Params[t.String()] = it.output.Model(t).Params()
	}
	for _, side := range []model.Side{model.SideLong, model.SideShort} {
		closing := model.Type{Side: side, Action: model.ActionClosing}
		if result.Samples[closing.Index()] > 0 {
			continue
		}
		result.StalledSides = append(result.StalledSides, side.String())
		it.logger.Warn("平仓模型没有样本，下一迭代该方向的对局将全部作废且无法恢复",
			zap.String("side", side.String()),
			zap.String("model", closing.String()),
			zap.Int("next_iteration", it.index+1),
		)
	}

	if err := it.output.Save(); err != nil {
		return Result{}, err
	}
	result.Elapsed = time.Since(started)

	it.logger.Info("迭代完成",
		zap.Int64("n_plays", result.Stat.NPlays),
		zap.Int("samples", result.TotalSamples),
		zap.Float64("mean_play_length", result.Stat.MeanPlayLength),
		zap.Float64("mean_prediction", result.Stat.MeanPrediction),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (it *Iteration) runWorker(ctx context.Context, worker int) (samples, error) {
	rng := rand.New(rand.NewPCG(rand.Uint64(), uint64(worker)))
	inferrer := NewInferrer(it.input, it.data)

	var local samples
	var err error
	if it.cfg.Mode == config.IterationModeBatched {
		err = it.runBatched(ctx, rng, inferrer, &local)
	} else {
		err = it.runSequential(ctx, rng, inferrer, &local)
	}
	it.logger.Debug("worker 退出",
		zap.Int("worker", worker),
		zap.Int("model_calls", inferrer.Calls()),
	)
	return local, err
}

func (it *Iteration) target() int64 {
	return int64(it.cfg.NPlays)
}

func (it *Iteration) playConfig() PlayConfig {
	return PlayConfig{
		FeePerContractUSD:     it.cfg.FeePerContractUSD,
		Multiplier:            it.cfg.Multiplier,
		UtilityPenaltyBps:     it.cfg.UtilityPenaltyBps,
		MaxPlayDurationInBars: it.cfg.MaxPlayDurationInBars,
	}
}

// newPlay 在起点扫描失败时返回 nil，由调用方重新抽样。
func (it *Iteration) newPlay(rng *rand.Rand) (*Play, error) {
	t, err := model.TypeFromIndex(rng.IntN(model.NumTypes))
	if err != nil {
		return nil, err
	}
	play, err := NewPlay(it.playConfig(), it.data, t, rng)
	if errors.Is(err, ErrNoFiniteStart) {
		return nil, nil
	}
	return play, err
}

func (it *Iteration) finishPlay(play *Play, local *samples) {
	it.stat.UpdatePlayLengths(play.Length())
	sample, ok := play.Sample()
	if !ok {
		if play.Discarded() {
			it.logger.Debug("对局因 NaN 推理作废",
				zap.String("model", play.TrainedType().String()),
				zap.Int("start", play.Start()),
				zap.Int("current", play.Current()),
			)
		}
		return
	}
	idx := play.TrainedType().Index()
	local[idx] = append(local[idx], sample)
}

func (it *Iteration) runSequential(ctx context.Context, rng *rand.Rand, inferrer *Inferrer, local *samples) error {
	for it.stat.NPlays() < it.target() {
		if err := ctx.Err(); err != nil {
			return err
		}
		play, err := it.newPlay(rng)
		if err != nil {
			return err
		}
		if play == nil {
			continue
		}
		for {
			req, ok := play.AdvanceToInference()
			if !ok {
				break
			}
			u := inferrer.Infer(req.Type, req.BarIndex)
			it.stat.UpdatePredictions(u)
			play.AdvanceWithInference(u)
		}
		it.finishPlay(play, local)
	}
	return nil
}

func (it *Iteration) runBatched(ctx context.Context, rng *rand.Rand, inferrer *Inferrer, local *samples) error {
	live := make([]*Play, 0, it.cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for len(live) < it.cfg.BatchSize && it.stat.NPlays() < it.target() {
			play, err := it.newPlay(rng)
			if err != nil {
				return err
			}
			if play != nil {
				live = append(live, play)
			}
		}
		if len(live) == 0 {
			return nil
		}

		for i, play := range live {
			if req, ok := play.AdvanceToInference(); ok {
				inferrer.PutRequest(i, req.Type, req.BarIndex)
			}
		}
		for _, inf := range inferrer.FulfillAllRequests() {
			it.stat.UpdatePredictions(inf.Prediction)
			live[inf.PlayIndex].AdvanceWithInference(inf.Prediction)
		}

		next := live[:0]
		for _, play := range live {
			if play.Finished() {
				it.finishPlay(play, local)
				continue
			}
			next = append(next, play)
		}
		clear(live[len(next):])
		live = next
	}
}
