// breaker 应急操作工具：通过控制API拉下kill开关、清除熔断或查看引擎状态。
// 供操作员在可视化进程不可用时手动干预。
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/control"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	addr      = flag.String("addr", "http://127.0.0.1:8080", "控制API地址")
	kill      = flag.Bool("kill", false, "拉下kill开关，立即停止交易")
	clear     = flag.Bool("clear", false, "清除熔断并恢复策略")
	mode      = flag.String("mode", "", "设置策略模式 (OFF|MONITOR|ACTIVE)")
	minSpread = flag.Float64("min-spread", -1, "设置最小价差阈值")
	size      = flag.Float64("size", -1, "设置单笔交易量")
	showState = flag.Bool("state", false, "打印当前引擎状态")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	client := &http.Client{Timeout: 3 * time.Second}

	if *kill {
		on := true
		post(client, "/api/control", &control.Request{KillSwitch: &on})
		log.Info().Msg("kill开关已拉下")
	}

	if *clear {
		post(client, "/api/control/clear", nil)
		log.Info().Msg("熔断已清除")
	}

	req := &control.Request{}
	changed := false
	if *mode != "" {
		req.StrategyMode = mode
		changed = true
	}
	if *minSpread >= 0 {
		req.MinSpread = minSpread
		changed = true
	}
	if *size >= 0 {
		req.TradeSize = size
		changed = true
	}
	if changed {
		post(client, "/api/control", req)
		log.Info().Msg("控制参数已更新")
	}

	if *showState || (!*kill && !*clear && !changed) {
		resp, err := client.Get(*addr + "/api/state")
		if err != nil {
			log.Fatal().Err(err).Msg("读取引擎状态失败")
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			fmt.Println(string(body))
			return
		}
		fmt.Println(pretty.String())
	}
}

func post(client *http.Client, path string, req *control.Request) {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			log.Fatal().Err(err).Msg("编码控制请求失败")
		}
		body = bytes.NewReader(b)
	}

	resp, err := client.Post(*addr+path, "application/json", body)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("控制请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		log.Fatal().Int("status", resp.StatusCode).Str("body", string(msg)).Msg("控制请求被拒绝")
	}
}
