package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the synthetic trace configuration
type Config struct {
	OutputPath    string
	AllowListPath string
	NumTokens     int
	NumPools      int
	NumLines      int
	NoiseRatio    float64 // 非价格调用与无关行的比例
	AllowTokens   int     // 写入白名单的 token 数
	Seed          int64
}

// PoolInfo represents one generated liquidity pool
type PoolInfo struct {
	Address  string
	Protocol string
	TokenA   string
	TokenB   string
}

// 协议与其价格查询函数
var protocols = []struct {
	Name     string
	Function string
}{
	{"UniswapV2", "getReserves"},
	{"SushiSwap", "getReserves"},
	{"UniswapV3", "slot0"},
	{"PancakeV3", "slot0"},
}

var noiseFunctions = []string{"balanceOf", "transfer", "approve", "decimals"}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.OutputPath, "o", "./trace-analyzed.txt", "输出 trace 文件")
	flag.StringVar(&cfg.AllowListPath, "allow", "", "同时输出 token 白名单文件")
	flag.IntVar(&cfg.NumTokens, "tokens", 50, "token 数量")
	flag.IntVar(&cfg.NumPools, "pools", 200, "池子数量")
	flag.IntVar(&cfg.NumLines, "lines", 5000, "价格调用行数")
	flag.Float64Var(&cfg.NoiseRatio, "noise", 0.2, "每条价格调用附带的干扰行比例")
	flag.IntVar(&cfg.AllowTokens, "allow-tokens", 10, "白名单中的 token 数")
	flag.Int64Var(&cfg.Seed, "seed", 0, "随机种子, 0 表示使用当前时间")
	flag.Parse()

	if cfg.NumTokens < 2 || cfg.NumPools < 1 {
		fmt.Fprintln(os.Stderr, "错误: 至少需要 2 个 token 和 1 个池子")
		os.Exit(1)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	fmt.Printf("正在生成 trace...\n")
	fmt.Printf("  token 数量: %d\n", cfg.NumTokens)
	fmt.Printf("  池子数量: %d\n", cfg.NumPools)
	fmt.Printf("  价格调用行数: %d\n", cfg.NumLines)
	fmt.Printf("  干扰比例: %.2f\n", cfg.NoiseRatio)
	fmt.Printf("  随机种子: %d\n", cfg.Seed)

	if err := generate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ trace 生成完成: %s\n", cfg.OutputPath)
	fmt.Printf("\n下一步:\n")
	if cfg.AllowListPath != "" {
		fmt.Printf("  tgraph analyze %s --tokens-file %s\n", cfg.OutputPath, cfg.AllowListPath)
	} else {
		fmt.Printf("  tgraph analyze %s\n", cfg.OutputPath)
	}
}

func generate(cfg *Config) error {
	rng := rand.New(rand.NewSource(cfg.Seed))

	tokens := make([]string, cfg.NumTokens)
	for i := range tokens {
		tokens[i] = randomAddress(rng)
	}
	pools := generatePools(rng, tokens, cfg.NumPools)

	if dir := filepath.Dir(cfg.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Trace analysis (synthetic, seed=%d)\n", cfg.Seed)
	fmt.Fprintf(w, "==================================\n")

	index := 0
	for n := 0; n < cfg.NumLines; n++ {
		// Hub tokens (low indices) get more traffic
		p := pools[skewedIndex(rng, len(pools))]
		a, b := p.TokenA, p.TokenB
		if rng.Intn(2) == 0 {
			a, b = b, a
		}
		fmt.Fprintf(w, "[%d] [%s]-[%s] %s %s %s() => (%s) gasUsed=%d\n",
			index, a, b, p.Address, p.Protocol, priceFunction(p.Protocol), priceResult(rng, p.Protocol), 2000+rng.Intn(8000))
		index++

		if rng.Float64() < cfg.NoiseRatio {
			writeNoise(w, rng, &index, p)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if cfg.AllowListPath != "" {
		return writeAllowList(cfg.AllowListPath, tokens, cfg.AllowTokens)
	}
	return nil
}

func generatePools(rng *rand.Rand, tokens []string, n int) []*PoolInfo {
	pools := make([]*PoolInfo, n)
	for i := range pools {
		a := skewedIndex(rng, len(tokens))
		b := rng.Intn(len(tokens))
		for b == a {
			b = rng.Intn(len(tokens))
		}
		proto := protocols[rng.Intn(len(protocols))]
		pools[i] = &PoolInfo{
			Address:  randomAddress(rng),
			Protocol: proto.Name,
			TokenA:   tokens[a],
			TokenB:   tokens[b],
		}
	}
	return pools
}

func writeNoise(w *bufio.Writer, rng *rand.Rand, index *int, p *PoolInfo) {
	switch rng.Intn(3) {
	case 0:
		// 非价格函数: 能被解析但会被丢弃
		fn := noiseFunctions[rng.Intn(len(noiseFunctions))]
		fmt.Fprintf(w, "[%d] [%s]-[%s] %s %s %s() => (%d) gasUsed=%d\n",
			*index, p.TokenA, p.TokenB, p.Address, p.Protocol, fn, rng.Intn(1_000_000), 500+rng.Intn(3000))
		*index++
	case 1:
		fmt.Fprintf(w, "  -> delegatecall %s\n", randomAddress(rng))
	default:
		fmt.Fprintln(w)
	}
}

func writeAllowList(path string, tokens []string, n int) error {
	if n > len(tokens) {
		n = len(tokens)
	}
	var sb strings.Builder
	sb.WriteString("# tracegen 白名单\n")
	for _, t := range tokens[:n] {
		sb.WriteString(t + "\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

func priceFunction(protocol string) string {
	for _, p := range protocols {
		if p.Name == protocol {
			return p.Function
		}
	}
	return "getReserves"
}

func priceResult(rng *rand.Rand, protocol string) string {
	if priceFunction(protocol) == "slot0" {
		return fmt.Sprintf("sqrtPriceX96=%d, tick=%d, observationIndex=%d",
			rng.Uint64(), rng.Intn(400000)-200000, rng.Intn(100))
	}
	return fmt.Sprintf("reserve0=%d, reserve1=%d, blockTimestampLast=%d",
		rng.Uint64(), rng.Uint64(), 1700000000+rng.Intn(10000000))
}

// skewedIndex favours low indices so a few tokens become hubs
func skewedIndex(rng *rand.Rand, n int) int {
	x := rng.Float64()
	return int(x * x * float64(n))
}

func randomAddress(rng *rand.Rand) string {
	const hexDigits = "0123456789abcdefABCDEF"
	b := make([]byte, 40)
	for i := range b {
		b[i] = hexDigits[rng.Intn(len(hexDigits))]
	}
	return "0x" + string(b)
}
