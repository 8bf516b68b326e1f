package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/geom"
)

// stateDigest hashes everything that can influence a future tick: the
// player, the bus sequence, and for every agent its body, rng and full FSM
// state including staged messages and timers. Two runs with equal digests at
// tick N behave identically from N+1 on.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.bus.Seq())

	p := w.player
	digestWriteI64(h, &tmp, int64(p.floor))
	digestWriteVec(h, &tmp, p.pos)
	digestWriteI64(h, &tmp, int64(p.next))
	digestWriteI64(h, &tmp, int64(p.waitLeft))
	h.Write([]byte{boolByte(p.done)})

	for _, ab := range w.agents {
		body := ab.body.Export()
		digestWriteVec(h, &tmp, body.Pos)
		digestWriteVec(h, &tmp, body.Heading)
		digestWriteVec(h, &tmp, body.Dest)
		h.Write([]byte{boolByte(body.HasDest), boolByte(ab.stalled), boolByte(ab.fsm.Active())})
		digestWriteU64(h, &tmp, ab.rng.State)
		digestWriteFSM(h, &tmp, ab.fsm.Export())
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteFSM(h hashWriter, tmp *[8]byte, s enemy.Snapshot) {
	for _, str := range []string{s.ID, s.Type, s.TargetID, s.PushTargetID, s.UpHoleID, s.DownHoleID, s.CommsFrom, s.CommsHoleID} {
		digestWriteStr(h, str)
	}
	digestWriteI64(h, tmp, int64(s.Floor))
	h.Write([]byte{
		byte(s.State), byte(s.Boost), byte(s.AllyBoost),
		boolByte(s.NearHole), boolByte(s.ReceivedComms), boolByte(s.ReceivedPush), boolByte(s.ReceivedBoostSuccess),
		boolByte(s.CanPush), boolByte(s.PushIssued), boolByte(s.Responded), boolByte(s.Catching),
	})
	digestWriteU64(h, tmp, math.Float64bits(s.AllyWillingness))
	for _, v := range []uint64{s.CommsTick, s.TurnAt, s.PushAt, s.WaitSince, s.StallTicks} {
		digestWriteU64(h, tmp, v)
	}

	digestWriteU64(h, tmp, uint64(len(s.Rejections)))
	for _, id := range s.Rejections {
		digestWriteStr(h, id)
	}
	digestWriteU64(h, tmp, uint64(len(s.Inbox)))
	for _, m := range s.Inbox {
		digestWriteU64(h, tmp, m.Seq)
		digestWriteU64(h, tmp, m.Tick)
		digestWriteStr(h, m.Sender)
		digestWriteStr(h, m.HoleID)
		h.Write([]byte{byte(m.Kind), byte(m.Status)})
		digestWriteU64(h, tmp, math.Float64bits(m.Willingness))
	}
}

func digestWriteStr(h hashWriter, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v geom.Vec3) {
	digestWriteU64(h, tmp, math.Float64bits(v.X))
	digestWriteU64(h, tmp, math.Float64bits(v.Y))
	digestWriteU64(h, tmp, math.Float64bits(v.Z))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
