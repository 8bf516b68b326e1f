package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"holechase.ai/internal/observerproto"
)

// watch connects to a server's observer stream and logs transitions, catches
// and a periodic per-tick summary.
func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/admin/v1/observer/ws", "observer ws url")
		floors    = flag.String("floors", "", "comma separated floors to follow (empty = all)")
		every     = flag.Uint64("every", 30, "log a tick summary every N ticks (0 disables)")
		ticksOnly = flag.Bool("ticks_only", false, "skip transition and catch events")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	fl, err := parseFloors(*floors)
	if err != nil {
		logger.Fatalf("bad -floors: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Floors:          fl,
		TicksOnly:       *ticksOnly,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		handle(logger, msg, *every)
	}
}

func handle(logger *log.Logger, msg []byte, every uint64) {
	typ, err := observerproto.DecodeType(msg)
	if err != nil {
		return
	}
	switch typ {
	case observerproto.TypeTick:
		var m observerproto.TickMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		if every == 0 || m.Tick%every != 0 {
			return
		}
		logger.Printf("tick=%d player=f%d %s bus=%d/%d", m.Tick, m.Player.Floor, summarize(m.Agents), m.Bus.Delivered, m.Bus.Dropped)

	case observerproto.TypeTransition:
		var m observerproto.TransitionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		if m.Reason != "" {
			logger.Printf("tick=%d %s f%d %s -> %s recovered: %s", m.Tick, m.AgentID, m.Floor, m.From, m.To, m.Reason)
			return
		}
		logger.Printf("tick=%d %s f%d %s -> %s", m.Tick, m.AgentID, m.Floor, m.From, m.To)

	case observerproto.TypeCatch:
		var m observerproto.CatchMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		logger.Printf("tick=%d CATCH %s caught %s on f%d (%.2f)", m.Tick, m.AgentID, m.QuarryID, m.Floor, m.Distance)
	}
}

// summarize renders agents as "e1:CHASING@2 e2:ROAMING@1".
func summarize(agents []observerproto.AgentState) string {
	parts := make([]string, 0, len(agents))
	for _, a := range agents {
		parts = append(parts, a.ID+":"+a.State+"@"+strconv.Itoa(a.Floor))
	}
	return strings.Join(parts, " ")
}

func parseFloors(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
