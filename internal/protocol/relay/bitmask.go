package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxRelays 位图最多表达 8 路
const MaxRelays = 8

// IsOn 第 id 路是否闭合
func IsOn(mask byte, id int) bool {
	if id < 0 || id >= MaxRelays {
		return false
	}
	return (mask>>uint(id))&1 == 1
}

// States 展开位图前 n 路状态
func States(mask byte, n int) []bool {
	if n > MaxRelays {
		n = MaxRelays
	}
	if n < 0 {
		n = 0
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = IsOn(mask, i)
	}
	return out
}

// ParseMask 解析十六进制位图，允许 0x 前缀，例如 "0F"、"0x0f"
func ParseMask(s string) (byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid bitmask %q: %w", s, err)
	}
	return byte(v), nil
}
