package chunker

import (
	"math"
)

// 针对音频母带等大文件的配置 (单位: 字节)
const (
	MinSize   = 64 * 1024   // 64KB
	AvgSize   = 256 * 1024  // 256KB
	MaxSize   = 1024 * 1024 // 1MB
	NormLevel = 2
)

// gearTable 是 Gear Hash 的 256 项随机表
// 必须在所有版本之间保持不变，否则同一文件会被切成不同的块
var gearTable = buildGearTable(0x63627661756c7431)

// buildGearTable 用 splitmix64 从固定种子生成表
func buildGearTable(seed uint64) [256]uint64 {
	var table [256]uint64
	x := seed
	for i := range table {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		table[i] = z ^ (z >> 31)
	}
	return table
}

// Chunker 是一个无状态的切分工具
type Chunker struct {
	maskS uint64
	maskL uint64
}

func NewChunker() *Chunker {
	bits := int(math.Round(math.Log2(float64(AvgSize))))
	return &Chunker{
		maskS: uint64(1<<(bits+NormLevel)) - 1,
		maskL: uint64(1<<(bits-NormLevel)) - 1,
	}
}

// Cut 将数据切分成一系列的切点。
// 返回值是每一块的结束 offset，最后一个值总是 len(data)
// 空数据返回 nil
func (c *Chunker) Cut(data []byte) []int {
	var cutPoints []int
	offset := 0
	n := len(data)

	for offset < n {
		// 1. 剩余不足最小块，直接收尾
		if n-offset <= MinSize {
			cutPoints = append(cutPoints, n)
			return cutPoints
		}

		// 2. 每次新块开始，fp 重置为 0
		fp := uint64(0)
		idx := offset + MinSize

		normLimit := min(offset+AvgSize, n)
		maxLimit := min(offset+MaxSize, n)

		scan := func(limit int, mask uint64) bool {
			for ; idx < limit; idx++ {
				fp = (fp << 1) + gearTable[data[idx]]
				if (fp & mask) == 0 {
					cutPoints = append(cutPoints, idx+1)
					offset = idx + 1
					return true
				}
			}
			return false
		}

		// A. 归一化区域 (严掩码)
		if scan(normLimit, c.maskS) {
			continue
		}

		// B. 普通区域 (宽掩码)
		if scan(maxLimit, c.maskL) {
			continue
		}

		// C. 强制切分
		cutPoints = append(cutPoints, maxLimit)
		offset = maxLimit
	}

	return cutPoints
}
