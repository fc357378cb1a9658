package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// RecordSize 为单条二进制记录的字节数：mid_price, f1, f2, f4 (float64) 与 timestamp (int64)。
const RecordSize = 5 * 8

// ErrTruncated 表示文件长度不是记录长度的整数倍。
var ErrTruncated = errors.New("dataset: 文件被截断")

// Load 读取二进制数据集，offset 与 limit 为占总行数的比例。
func Load(path string, offset, limit float64) (Dataset, error) {
	if offset < 0 || offset >= 1 {
		return nil, fmt.Errorf("dataset: offset 必须位于[0,1)，当前 %f", offset)
	}
	if limit <= 0 || limit > 1 || offset+limit > 1+1e-9 {
		return nil, fmt.Errorf("dataset: limit 非法 offset=%f limit=%f", offset, limit)
	}

	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("dataset: 打开文件失败: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("dataset: 读取文件信息失败: %w", err)
	}
	if info.Size()%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %s 大小 %d 不是 %d 的整数倍", ErrTruncated, resolved, info.Size(), RecordSize)
	}

	nRows := int(info.Size() / RecordSize)
	start := int(offset * float64(nRows))
	count := int(limit * float64(nRows))
	if start+count > nRows {
		count = nRows - start
	}

	if _, err := file.Seek(int64(start)*RecordSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("dataset: 定位起始记录失败: %w", err)
	}

	data, err := Decode(bufio.NewReader(file), count)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Decode 从 r 中读取 n 条记录。
func Decode(r io.Reader, n int) (Dataset, error) {
	data := make(Dataset, 0, n)
	var buf [RecordSize]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: 第 %d 条记录不完整", ErrTruncated, i)
			}
			return nil, fmt.Errorf("dataset: 读取第 %d 条记录失败: %w", i, err)
		}
		data = append(data, decodeRecord(buf[:]))
	}
	return data, nil
}

// Write 以二进制格式写出数据集。
func Write(path string, data Dataset) error {
	resolved, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("dataset: 创建目录 %q 失败: %w", dir, err)
		}
	}

	file, err := os.Create(resolved)
	if err != nil {
		return fmt.Errorf("dataset: 创建文件失败: %w", err)
	}

	w := bufio.NewWriter(file)
	var buf [RecordSize]byte
	for i := range data {
		encodeRecord(buf[:], data[i])
		if _, err := w.Write(buf[:]); err != nil {
			_ = file.Close()
			return fmt.Errorf("dataset: 写入记录失败: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("dataset: 刷新缓冲失败: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("dataset: 关闭文件失败: %w", err)
	}
	return nil
}

// ExpandPath 展开开头的 ~ 为用户主目录。
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("dataset: 路径不能为空")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("dataset: 获取用户目录失败: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}

func decodeRecord(b []byte) Bar {
	le := binary.LittleEndian
	return Bar{
		MidPrice: math.Float64frombits(le.Uint64(b[0:8])),
		Point: Point{
			F1: math.Float64frombits(le.Uint64(b[8:16])),
			F2: math.Float64frombits(le.Uint64(b[16:24])),
			F4: math.Float64frombits(le.Uint64(b[24:32])),
		},
		Timestamp: int64(le.Uint64(b[32:40])),
	}
}

func encodeRecord(b []byte, bar Bar) {
	le := binary.LittleEndian
	le.PutUint64(b[0:8], math.Float64bits(bar.MidPrice))
	le.PutUint64(b[8:16], math.Float64bits(bar.Point.F1))
	le.PutUint64(b[16:24], math.Float64bits(bar.Point.F2))
	le.PutUint64(b[24:32], math.Float64bits(bar.Point.F4))
	le.PutUint64(b[32:40], uint64(bar.Timestamp))
}
