package backtest

import (
	"fmt"

	"trades-selfplay/internal/position"
)

// Config 定义回测的合约参数。
type Config struct {
	Symbol     string  // 合约代码
	Multiplier float64 // 合约乘数
	Fee        float64 // 每手手续费
}

func (c Config) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("backtest: 合约代码不能为空")
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("backtest: 合约乘数必须大于0，当前 %v", c.Multiplier)
	}
	if c.Fee < 0 {
		return fmt.Errorf("backtest: 手续费不能为负，当前 %v", c.Fee)
	}
	return nil
}

// NewPosition 按配置创建唯一标的的仓位，下标固定为 0。
func (c Config) NewPosition() (*position.Position, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return position.New(
		position.InstrumentID{Index: 0, Symbol: c.Symbol},
		position.InstrumentSpec{Multiplier: c.Multiplier, Fee: c.Fee},
	), nil
}
