package transport

import (
	"fmt"
	"net"
	"sync"
)

// ListenUDP 绑定指定端口的UDP接收socket（0.0.0.0）
func ListenUDP(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("绑定UDP端口 %d 失败: %w", port, err)
	}
	return conn, nil
}

// TradeSender 交易指令发送器。目标IP来自首包学习（set-once），端口取自配置。
// 学习到的地址由自己的锁保护，与状态存储的锁相互独立。
type TradeSender struct {
	conn net.PacketConn
	port int

	mu   sync.Mutex
	dest *net.UDPAddr
}

// NewTradeSender 创建发送器，port 为交易指令目的端口
func NewTradeSender(port int) (*TradeSender, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("创建交易发送socket失败: %w", err)
	}
	return &TradeSender{conn: conn, port: port}, nil
}

// Learn 从首个行情包的源地址学习交易目的IP。只保留IP，端口固定用配置值；
// 学习成功后不再更新。
func (t *TradeSender) Learn(src *net.UDPAddr) {
	if src == nil {
		return
	}
	t.mu.Lock()
	if t.dest == nil {
		t.dest = &net.UDPAddr{IP: src.IP, Port: t.port}
	}
	t.mu.Unlock()
}

// Ready 交易目的地址是否已学习到
func (t *TradeSender) Ready() bool {
	t.mu.Lock()
	ready := t.dest != nil
	t.mu.Unlock()
	return ready
}

// Dest 当前目的地址（未学习到时为nil）
func (t *TradeSender) Dest() *net.UDPAddr {
	t.mu.Lock()
	d := t.dest
	t.mu.Unlock()
	return d
}

// Send 发送一条交易指令到已学习的目的地址
func (t *TradeSender) Send(payload []byte) error {
	t.mu.Lock()
	dest := t.dest
	t.mu.Unlock()

	if dest == nil {
		return fmt.Errorf("交易目的地址尚未学习到")
	}
	if _, err := t.conn.WriteTo(payload, dest); err != nil {
		return fmt.Errorf("发送交易指令失败: %w", err)
	}
	return nil
}

// Close 关闭发送socket
func (t *TradeSender) Close() error {
	return t.conn.Close()
}
