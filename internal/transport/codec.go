package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// 行情与交易指令都是空格分隔的文本帧：
//
//	TICK <venue> <symbol> <bid> <ask> <seq> <venue_ts_ns>
//	TRADE ARB1 <legA_venue> <legA_side> <legA_price> <legB_venue> <legB_side> <legB_price> <size> <used_spread> <send_ts_ns>

const (
	maxVenueLen  = 7
	maxSymbolLen = 15
)

// Tick 解码后的一条行情
type Tick struct {
	Venue     string
	Symbol    string
	Bid       float64
	Ask       float64
	Seq       uint64
	VenueTSNS uint64
}

// ParseTick 严格解码TICK帧：标记不符、字段不足或数值非法都算解码失败。
// 多余的尾部字段忽略。
func ParseTick(payload []byte) (Tick, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 7 {
		return Tick{}, fmt.Errorf("TICK帧字段不足: 需要7个, 实际%d", len(fields))
	}
	if fields[0] != "TICK" {
		return Tick{}, fmt.Errorf("非TICK帧: %q", fields[0])
	}
	if len(fields[1]) > maxVenueLen {
		return Tick{}, fmt.Errorf("场所标识过长: %q", fields[1])
	}
	if len(fields[2]) > maxSymbolLen {
		return Tick{}, fmt.Errorf("品种标识过长: %q", fields[2])
	}

	bid, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("bid非法: %w", err)
	}
	ask, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("ask非法: %w", err)
	}
	seq, err := strconv.ParseUint(fields[5], 10, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("seq非法: %w", err)
	}
	ts, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("venue_ts_ns非法: %w", err)
	}

	return Tick{
		Venue:     fields[1],
		Symbol:    fields[2],
		Bid:       bid,
		Ask:       ask,
		Seq:       seq,
		VenueTSNS: ts,
	}, nil
}

// TradeInstruction 待发送的套利交易指令（两条腿）
type TradeInstruction struct {
	LegAVenue string
	LegASide  string
	LegAPrice float64
	LegBVenue string
	LegBSide  string
	LegBPrice float64
	Size      float64
	Spread    float64
	SendTSNS  uint64
}

// Encode 编码为TRADE帧
func (ti TradeInstruction) Encode() []byte {
	return []byte(fmt.Sprintf("TRADE ARB1 %s %s %.6f %s %s %.6f %.6f %.6f %d",
		ti.LegAVenue, ti.LegASide, ti.LegAPrice,
		ti.LegBVenue, ti.LegBSide, ti.LegBPrice,
		ti.Size, ti.Spread, ti.SendTSNS))
}
