package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Config 压测配置
type Config struct {
	Mode         string        // connect-only, presence, chat
	Target       string        // WebSocket URL
	Conns        int           // 总连接数
	Duration     time.Duration // 压测持续时间
	Ramp         time.Duration // 爬坡时间
	PingInterval time.Duration // 应用层 ping 间隔
	MsgRate      int           // 每连接每分钟事件数（presence/chat 模式）
	PayloadSize  int           // 聊天消息体大小
	RoomSize     int           // 每个聊天房间的连接数
	Secret       string        // HMAC 签名密钥，与服务端 auth.secret 一致
	CookieName   string        // 携带令牌的 cookie
	UserPrefix   string        // 压测用户 ID 前缀
	Output       string        // 输出格式：text, json, csv
	Verbose      bool          // 详细输出
}

func main() {
	cfg := parseFlags()
	if cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "必须指定 -secret")
		os.Exit(2)
	}

	fmt.Println("=== wsbench - relay 压测工具 ===")
	fmt.Printf("模式: %s\n", cfg.Mode)
	fmt.Printf("目标: %s\n", cfg.Target)
	fmt.Printf("连接数: %d\n", cfg.Conns)
	fmt.Printf("持续时间: %s\n", cfg.Duration)
	fmt.Printf("爬坡时间: %s\n", cfg.Ramp)
	fmt.Println()

	stats := newStats()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n收到中断信号，正在关闭...")
		cancel()
	}()

	runBench(ctx, cfg, stats)
	stats.EndTime = time.Now()

	result := generateResult(cfg, stats)
	switch cfg.Output {
	case "json":
		outputJSON(result)
	case "csv":
		outputCSV(result)
	default:
		outputText(result)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Mode, "mode", "connect-only", "压测模式: connect-only, presence, chat")
	flag.StringVar(&cfg.Target, "target", "ws://localhost:3001/ws", "WebSocket URL")
	flag.IntVar(&cfg.Conns, "conns", 1000, "总连接数")
	flag.DurationVar(&cfg.Duration, "duration", 5*time.Minute, "压测持续时间")
	flag.DurationVar(&cfg.Ramp, "ramp", 1*time.Minute, "爬坡时间")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", 30*time.Second, "应用层 ping 间隔")
	flag.IntVar(&cfg.MsgRate, "msg-rate", 10, "每连接每分钟事件数（presence/chat 模式）")
	flag.IntVar(&cfg.PayloadSize, "payload-size", 128, "聊天消息体大小（字节）")
	flag.IntVar(&cfg.RoomSize, "room-size", 10, "每个聊天房间的连接数（chat 模式）")
	flag.StringVar(&cfg.Secret, "secret", os.Getenv("RELAY_AUTH_SECRET"), "HMAC 签名密钥")
	flag.StringVar(&cfg.CookieName, "cookie", "__session", "携带令牌的 cookie 名")
	flag.StringVar(&cfg.UserPrefix, "user-prefix", "bench-", "压测用户 ID 前缀")
	flag.StringVar(&cfg.Output, "output", "text", "输出格式: text, json, csv")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "详细输出")

	flag.Parse()

	if cfg.RoomSize <= 0 {
		cfg.RoomSize = 1
	}
	return cfg
}

func runBench(ctx context.Context, cfg Config, stats *Stats) {
	var wg sync.WaitGroup
	clientCh := make(chan *Client, cfg.Conns)

	// 计算每秒连接数（爬坡）
	connsPerSecond := float64(cfg.Conns) / cfg.Ramp.Seconds()
	if connsPerSecond < 1 {
		connsPerSecond = 1
	}
	fmt.Printf("爬坡速率: %.1f 连接/秒\n\n", connsPerSecond)

	bar := progressbar.NewOptions(cfg.Conns,
		progressbar.OptionSetDescription("建立连接"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("conn"),
	)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / connsPerSecond))
	defer ticker.Stop()

	for id := 0; id < cfg.Conns; {
		select {
		case <-ctx.Done():
			id = cfg.Conns
			continue
		case <-ticker.C:
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer bar.Add(1)
			c, err := dial(ctx, id, cfg, stats)
			if err != nil {
				if cfg.Verbose {
					fmt.Printf("连接 %d 失败: %v\n", id, err)
				}
				return
			}
			clientCh <- c
		}(id)
		id++
	}

	bar.Finish()
	fmt.Println()
	wg.Wait()

	close(clientCh)
	var clients []*Client
	for c := range clientCh {
		clients = append(clients, c)
	}
	fmt.Printf("成功建立 %d 个连接\n", len(clients))
	if len(clients) == 0 {
		fmt.Println("没有成功建立的连接，退出")
		return
	}

	remaining := cfg.Duration - time.Since(stats.StartTime)
	if remaining <= 0 {
		remaining = time.Minute
	}
	fmt.Printf("维持连接 %s...\n\n", remaining)

	runCtx, stop := context.WithTimeout(ctx, remaining)
	defer stop()

	var clientWg sync.WaitGroup
	for _, c := range clients {
		clientWg.Add(1)
		go func(c *Client) {
			defer clientWg.Done()
			c.run(runCtx, cfg, stats)
		}(c)
	}

	done := make(chan struct{})
	go func() {
		clientWg.Wait()
		close(done)
	}()

	reportTicker := time.NewTicker(10 * time.Second)
	defer reportTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-reportTicker.C:
			printProgress(stats)
		}
	}
}
