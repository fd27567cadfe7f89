package telemetry

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
)

const writeTimeout = time.Second

// Broadcaster pushes every record to the connected dashboard websockets.
// Send never blocks: when the queue is full the record is dropped.
type Broadcaster struct {
	mu      sync.Mutex
	sockets []*websocket.Conn

	messages chan []byte
	done     chan struct{}
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	every    int
	n        int
}

// NewBroadcaster starts the writer. Only every n-th record is sent; n <= 1
// sends all of them.
func NewBroadcaster(queue, every int) *Broadcaster {
	if queue < 1 {
		queue = 1
	}
	b := &Broadcaster{
		messages: make(chan []byte, queue),
		done:     make(chan struct{}),
		every:    every,
	}
	b.wg.Add(1)
	go b.writer()
	return b
}

// Send queues rec for the dashboard.
func (b *Broadcaster) Send(rec record.FlightRecord) {
	b.n++
	if b.every > 1 && b.n%b.every != 1 {
		return
	}
	t := FromRecord(rec)
	msg, err := json.Marshal(Message{Type: "telemetry", Data: &t})
	if err != nil {
		log.Errorf("Telemetry Error: marshal: %s", err)
		return
	}
	b.Broadcast(msg)
}

// Broadcast queues a raw message.
func (b *Broadcaster) Broadcast(msg []byte) {
	select {
	case b.messages <- msg:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// AddSocket starts sending to sock.
func (b *Broadcaster) AddSocket(sock *websocket.Conn) {
	b.mu.Lock()
	b.sockets = append(b.sockets, sock)
	b.mu.Unlock()
}

// Clients returns the number of connected sockets.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

// Handler serves the /telemetry websocket. The connection stays registered
// until the client goes away.
func (b *Broadcaster) Handler() websocket.Handler {
	return func(conn *websocket.Conn) {
		log.Infof("Telemetry Info: dashboard connected from %s", conn.Request().RemoteAddr)
		b.AddSocket(conn)
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				break
			}
		}
		b.remove(conn)
	}
}

func (b *Broadcaster) remove(sock *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.sockets {
		if s == sock {
			b.sockets = append(b.sockets[:i], b.sockets[i+1:]...)
			return
		}
	}
}

func (b *Broadcaster) writer() {
	defer b.wg.Done()
	for {
		var msg []byte
		select {
		case <-b.done:
			return
		case msg = <-b.messages:
		}
		// Keep only the sockets that are still writeable.
		b.mu.Lock()
		p := b.sockets[:0]
		for _, sock := range b.sockets {
			err := sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			_, err2 := sock.Write(msg)
			if err == nil && err2 == nil {
				p = append(p, sock)
			} else {
				sock.Close()
			}
		}
		b.sockets = p
		b.mu.Unlock()
	}
}

// Close stops the writer and disconnects every client.
func (b *Broadcaster) Close() {
	close(b.done)
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sock := range b.sockets {
		sock.Close()
	}
	b.sockets = nil
}
