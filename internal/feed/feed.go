// Package feed 实现单场所行情接收循环：阻塞收包、严格解码、写入状态存储。
// 每个场所一个协程，互不干扰；解码失败丢弃，接收失败仅终止本协程。
package feed

import (
	"errors"
	"net"

	"github.com/dhruvilB01/PocketTrader/internal/clock"
	"github.com/dhruvilB01/PocketTrader/internal/metrics"
	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/dhruvilB01/PocketTrader/internal/transport"
	"github.com/rs/zerolog/log"
)

// AddrLearner 首包地址学习接口（由交易发送器实现，set-once语义）
type AddrLearner interface {
	Learn(src *net.UDPAddr)
}

// Receiver 单场所行情接收器
type Receiver struct {
	venue  store.Venue
	conn   *net.UDPConn
	store  *store.Store
	sender AddrLearner
	nowNS  func() uint64
}

// NewReceiver 创建行情接收器。sender 可为nil（纯监听场景，不学习地址）。
func NewReceiver(venue store.Venue, conn *net.UDPConn, st *store.Store, sender AddrLearner) *Receiver {
	return &Receiver{
		venue:  venue,
		conn:   conn,
		store:  st,
		sender: sender,
		nowNS:  clock.NowNS,
	}
}

// Run 阻塞运行接收循环。关闭socket即为退出信号；其它接收错误视为本线程致命，
// 记录后退出，引擎其余部分继续运行，该场所的报价会自然老化为stale。
func (r *Receiver) Run() {
	buf := make([]byte, 256)

	log.Info().Str("venue", r.venue.String()).Msg("行情接收循环启动")

	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info().Str("venue", r.venue.String()).Msg("行情socket已关闭，接收循环退出")
				return
			}
			log.Error().Err(err).Str("venue", r.venue.String()).Msg("行情接收失败，接收循环终止")
			metrics.RecordError("feed_recv", r.venue.String())
			return
		}
		if n == 0 {
			continue
		}

		tick, err := transport.ParseTick(buf[:n])
		if err != nil {
			log.Warn().Err(err).Str("venue", r.venue.String()).Msg("丢弃非法TICK帧")
			metrics.RecordError("tick_decode", r.venue.String())
			continue
		}

		recvNS := r.nowNS()
		r.store.ApplyTick(r.venue, tick.Bid, tick.Ask, tick.Seq, recvNS)
		metrics.RecordTick(r.venue.String())

		// 首包学习交易目的地址
		if r.sender != nil {
			r.sender.Learn(src)
		}
	}
}
