package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats 运行期统计，计数器用 atomic，延迟样本和错误表用锁
type Stats struct {
	mu sync.Mutex

	TotalAttempts int64
	SuccessConns  int64
	FailedConns   int64
	CurrentConns  int64
	Disconnects   int64

	MessagesSent     int64
	MessagesReceived int64
	MessagesFailed   int64
	StatusReceived   int64

	PingsSent     int64
	PongsReceived int64

	connLatencies []time.Duration
	pingLatencies []time.Duration
	msgLatencies  []time.Duration
	errors        map[string]int64

	StartTime time.Time
	EndTime   time.Time
}

func newStats() *Stats {
	return &Stats{errors: make(map[string]int64), StartTime: time.Now()}
}

func (s *Stats) recordError(msg string) {
	if len(msg) > 60 {
		msg = msg[:60]
	}
	s.mu.Lock()
	s.errors[msg]++
	s.mu.Unlock()
}

func (s *Stats) recordConnLatency(d time.Duration) {
	s.mu.Lock()
	s.connLatencies = append(s.connLatencies, d)
	s.mu.Unlock()
}

func (s *Stats) recordPingLatency(d time.Duration) {
	s.mu.Lock()
	s.pingLatencies = append(s.pingLatencies, d)
	s.mu.Unlock()
}

func (s *Stats) recordMsgLatency(d time.Duration) {
	s.mu.Lock()
	s.msgLatencies = append(s.msgLatencies, d)
	s.mu.Unlock()
}

// LatencyStats 延迟分布（毫秒）
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	StdDev float64 `json:"std_dev"`
}

// Result 压测结果
type Result struct {
	Mode        string  `json:"mode"`
	Target      string  `json:"target"`
	TargetConns int     `json:"target_conns"`
	ActualTime  float64 `json:"actual_time_seconds"`

	TotalAttempts int64   `json:"total_attempts"`
	SuccessConns  int64   `json:"success_conns"`
	FailedConns   int64   `json:"failed_conns"`
	SuccessRate   float64 `json:"success_rate_percent"`
	Disconnects   int64   `json:"disconnects"`
	FinalConns    int64   `json:"final_conns"`

	ConnLatency LatencyStats `json:"conn_latency_ms"`
	PingLatency LatencyStats `json:"ping_rtt_ms"`
	MsgLatency  LatencyStats `json:"msg_latency_ms"`

	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	MessagesFailed   int64 `json:"messages_failed"`
	StatusReceived   int64 `json:"status_received"`

	PingsSent     int64   `json:"pings_sent"`
	PongsReceived int64   `json:"pongs_received"`
	PongRate      float64 `json:"pong_rate_percent"`

	Errors map[string]int64 `json:"errors"`
}

func printProgress(stats *Stats) {
	elapsed := time.Since(stats.StartTime)
	fmt.Printf("[%s] 当前连接: %d | 失败: %d | 断开: %d | 发送/接收: %d/%d | 状态: %d | Ping/Pong: %d/%d\n",
		elapsed.Round(time.Second),
		atomic.LoadInt64(&stats.CurrentConns),
		atomic.LoadInt64(&stats.FailedConns),
		atomic.LoadInt64(&stats.Disconnects),
		atomic.LoadInt64(&stats.MessagesSent),
		atomic.LoadInt64(&stats.MessagesReceived),
		atomic.LoadInt64(&stats.StatusReceived),
		atomic.LoadInt64(&stats.PingsSent),
		atomic.LoadInt64(&stats.PongsReceived),
	)
}

func generateResult(cfg Config, stats *Stats) Result {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	r := Result{
		Mode:             cfg.Mode,
		Target:           cfg.Target,
		TargetConns:      cfg.Conns,
		ActualTime:       stats.EndTime.Sub(stats.StartTime).Seconds(),
		TotalAttempts:    atomic.LoadInt64(&stats.TotalAttempts),
		SuccessConns:     atomic.LoadInt64(&stats.SuccessConns),
		FailedConns:      atomic.LoadInt64(&stats.FailedConns),
		Disconnects:      atomic.LoadInt64(&stats.Disconnects),
		FinalConns:       atomic.LoadInt64(&stats.CurrentConns),
		MessagesSent:     atomic.LoadInt64(&stats.MessagesSent),
		MessagesReceived: atomic.LoadInt64(&stats.MessagesReceived),
		MessagesFailed:   atomic.LoadInt64(&stats.MessagesFailed),
		StatusReceived:   atomic.LoadInt64(&stats.StatusReceived),
		PingsSent:        atomic.LoadInt64(&stats.PingsSent),
		PongsReceived:    atomic.LoadInt64(&stats.PongsReceived),
		ConnLatency:      summarize(stats.connLatencies),
		PingLatency:      summarize(stats.pingLatencies),
		MsgLatency:       summarize(stats.msgLatencies),
		Errors:           make(map[string]int64, len(stats.errors)),
	}
	for k, v := range stats.errors {
		r.Errors[k] = v
	}

	if r.TotalAttempts > 0 {
		r.SuccessRate = float64(r.SuccessConns) / float64(r.TotalAttempts) * 100
	}
	if r.PingsSent > 0 {
		r.PongRate = float64(r.PongsReceived) / float64(r.PingsSent) * 100
	}
	return r
}

func summarize(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	pct := func(p int) float64 { return ms(sorted[len(sorted)*p/100]) }

	var sum float64
	for _, d := range sorted {
		sum += ms(d)
	}
	avg := sum / float64(len(sorted))

	var variance float64
	for _, d := range sorted {
		diff := ms(d) - avg
		variance += diff * diff
	}

	return LatencyStats{
		Count:  len(sorted),
		Min:    ms(sorted[0]),
		Max:    ms(sorted[len(sorted)-1]),
		Avg:    avg,
		P50:    pct(50),
		P90:    pct(90),
		P99:    pct(99),
		StdDev: math.Sqrt(variance / float64(len(sorted))),
	}
}

func outputJSON(result Result) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON 编码错误: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printLatency(title string, l LatencyStats) {
	if l.Count == 0 {
		return
	}
	fmt.Printf("--- %s (ms, n=%d) ---\n", title, l.Count)
	fmt.Printf("Min/Avg/Max: %.2f / %.2f / %.2f\n", l.Min, l.Avg, l.Max)
	fmt.Printf("P50/P90/P99: %.2f / %.2f / %.2f\n", l.P50, l.P90, l.P99)
	fmt.Printf("StdDev:      %.2f\n", l.StdDev)
	fmt.Println()
}

func outputText(r Result) {
	fmt.Println()
	fmt.Println("==================== 压测结果 ====================")
	fmt.Println()
	fmt.Println("--- 连接统计 ---")
	fmt.Printf("尝试/成功/失败: %d / %d / %d (%.2f%%)\n", r.TotalAttempts, r.SuccessConns, r.FailedConns, r.SuccessRate)
	fmt.Printf("断开连接数:     %d\n", r.Disconnects)
	fmt.Printf("最终连接数:     %d\n", r.FinalConns)
	fmt.Println()

	printLatency("握手延迟", r.ConnLatency)
	printLatency("Ping 往返", r.PingLatency)

	if r.Mode != "connect-only" {
		fmt.Println("--- 事件统计 ---")
		fmt.Printf("发送/失败:      %d / %d\n", r.MessagesSent, r.MessagesFailed)
		fmt.Printf("聊天消息接收:   %d\n", r.MessagesReceived)
		fmt.Printf("状态推送接收:   %d\n", r.StatusReceived)
		fmt.Println()
		printLatency("聊天扇出延迟", r.MsgLatency)
	}

	fmt.Printf("Ping/Pong: %d / %d (%.2f%%)\n", r.PingsSent, r.PongsReceived, r.PongRate)
	fmt.Println()

	if len(r.Errors) > 0 {
		fmt.Println("--- 错误统计 ---")
		for msg, count := range r.Errors {
			fmt.Printf("%s: %d\n", msg, count)
		}
		fmt.Println()
	}

	fmt.Printf("--- 运行时间: %.2f 秒 ---\n", r.ActualTime)
	fmt.Println("=================================================")
}

func outputCSV(r Result) {
	fmt.Println("metric,value")
	fmt.Printf("mode,%s\n", r.Mode)
	fmt.Printf("target,%s\n", r.Target)
	fmt.Printf("target_conns,%d\n", r.TargetConns)
	fmt.Printf("duration_seconds,%.2f\n", r.ActualTime)
	fmt.Printf("success_conns,%d\n", r.SuccessConns)
	fmt.Printf("failed_conns,%d\n", r.FailedConns)
	fmt.Printf("success_rate_percent,%.2f\n", r.SuccessRate)
	fmt.Printf("disconnects,%d\n", r.Disconnects)
	for _, row := range []struct {
		name string
		l    LatencyStats
	}{{"conn_latency", r.ConnLatency}, {"ping_rtt", r.PingLatency}, {"msg_latency", r.MsgLatency}} {
		fmt.Printf("%s_p50_ms,%.2f\n", row.name, row.l.P50)
		fmt.Printf("%s_p99_ms,%.2f\n", row.name, row.l.P99)
	}
	fmt.Printf("messages_sent,%d\n", r.MessagesSent)
	fmt.Printf("messages_received,%d\n", r.MessagesReceived)
	fmt.Printf("status_received,%d\n", r.StatusReceived)
	fmt.Printf("pong_rate_percent,%.2f\n", r.PongRate)
}
