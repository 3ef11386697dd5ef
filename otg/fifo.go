package otg

import (
	"encoding/binary"

	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// rxEntry is one status word of the receive FIFO with the data it announces.
type rxEntry struct {
	status uint32
	data   []uint32
}

func (e rxEntry) words() int {
	return 1 + len(e.data)
}

// RxStatus builds a GRXSTS word.
func RxStatus(num, bcnt, dpid, psts uint32) uint32 {
	var v uint32
	v = RxstsCHNUM.Put(v, num)
	v = RxstsBCNT.Put(v, bcnt)
	v = RxstsDPID.Put(v, dpid)
	v = RxstsPSTS.Put(v, psts)
	return v
}

// packWords converts bytes to little-endian FIFO words, zero padding the
// last word.
func packWords(b []byte) []uint32 {
	w := make([]uint32, (len(b)+3)/4)
	for i := range w {
		var tmp [4]byte
		copy(tmp[:], b[i*4:])
		w[i] = binary.LittleEndian.Uint32(tmp[:])
	}
	return w
}

// unpackWords converts n bytes out of FIFO words.
func unpackWords(w []uint32, n int) []byte {
	b := make([]byte, len(w)*4)
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	if n > len(b) {
		n = len(b)
	}
	return b[:n]
}

func (c *Core) rxDepth() int {
	return int(reg.Get(&c.Regs.G.GRXFIFO, RxfifoRXFDEP))
}

func (c *Core) rxUsed() int {
	n := 0
	for _, e := range c.rx {
		n += e.words()
	}
	return n
}

// rxFree returns the free receive FIFO space in words.
func (c *Core) rxFree() int {
	return c.rxDepth() - c.rxUsed()
}

func (c *Core) pushRx(status uint32, data []byte) {
	c.rx = append(c.rx, rxEntry{status: status, data: packWords(data)})
}

// PopRxStatus pops the next receive FIFO status word (GRXSTSP). The data
// words it announces become readable through ReadFIFO. Popping a completion
// status raises the matching channel or endpoint interrupt.
func (c *Core) PopRxStatus() uint32 {
	if len(c.rx) == 0 {
		return 0
	}
	if len(c.cur) > 0 {
		pkg.LogWarn(pkg.ComponentFIFO, "discarding unread rx words", "words", len(c.cur))
	}
	e := c.rx[0]
	c.rx = c.rx[1:]
	c.cur = e.data
	c.Regs.G.GRXSTS = e.status

	num := RxstsCHNUM.Get(e.status)
	psts := RxstsPSTS.Get(e.status)
	if c.HostMode() {
		if psts == PktStatusInComplete {
			reg.SetMask(&c.Regs.H.Ch[num].HCHINT, ChintTSFCMPN)
		}
	} else {
		switch psts {
		case PktStatusOutComplete:
			reg.SetMask(&c.Regs.D.Out[num].DOEPINT, DoepintTSFCMP)
		case PktStatusSetupComplete:
			reg.SetMask(&c.Regs.D.Out[num].DOEPINT, DoepintSETPCMP)
		}
	}
	c.Sync()
	return e.status
}

// ReadFIFO reads one word of the data announced by the last popped status.
// Reading past the data returns zero.
func (c *Core) ReadFIFO() uint32 {
	if len(c.cur) == 0 {
		return 0
	}
	w := c.cur[0]
	c.cur = c.cur[1:]
	return w
}

// WriteFIFO pushes one word into transmit FIFO n: the channel number in
// host mode, the IN endpoint number in device mode. It reports false and
// drops the word when the FIFO is full.
func (c *Core) WriteFIFO(n int, w uint32) bool {
	if c.HostMode() {
		if n < 0 || n >= HostChannels || c.txFree(n) <= 0 {
			pkg.LogWarn(pkg.ComponentFIFO, "tx fifo overrun", "ch", n)
			return false
		}
		c.chTx[n] = append(c.chTx[n], w)
		return true
	}
	if n < 0 || n >= DeviceEndpoints || c.epTxFree(n) <= 0 {
		pkg.LogWarn(pkg.ComponentFIFO, "tx fifo overrun", "ep", n)
		return false
	}
	c.epTx[n] = append(c.epTx[n], w)
	return true
}

// ReadPacket drains len(dst) bytes from the receive FIFO, a word at a time.
// A trailing remainder of one to three bytes is taken from the low bytes of
// the last word.
func (c *Core) ReadPacket(dst []byte) {
	n := len(dst)
	i := 0
	for ; i+4 <= n; i += 4 {
		binary.LittleEndian.PutUint32(dst[i:], c.ReadFIFO())
	}
	if i < n {
		w := c.ReadFIFO()
		for ; i < n; i++ {
			dst[i] = byte(w)
			w >>= 8
		}
	}
}

// WritePacket pushes src into transmit FIFO n as ceil(len/4) words. The
// caller must have checked the free space first.
func (c *Core) WritePacket(n int, src []byte) {
	for _, w := range packWords(src) {
		c.WriteFIFO(n, w)
	}
	c.Sync()
}

// periodic reports whether host channel ch carries isochronous or interrupt
// traffic.
func (c *Core) periodic(ch int) bool {
	t := reg.Get(&c.Regs.H.Ch[ch].HCH, HchEDPTYP)
	return t == EpTypeIso || t == EpTypeInterrupt
}

func (c *Core) npDepth() int {
	return int(reg.Get(&c.Regs.G.GTXFCFG, TxfcfgDepth))
}

func (c *Core) pDepth() int {
	return int(reg.Get(&c.Regs.G.GHPTXFSIZE, TxfcfgDepth))
}

// txUsed returns the words queued in the periodic or non-periodic FIFO.
func (c *Core) txUsed(periodic bool) int {
	n := 0
	for ch := range c.chTx {
		if c.periodic(ch) == periodic {
			n += len(c.chTx[ch])
		}
	}
	return n
}

// txFree returns the free words of the FIFO host channel ch writes into.
func (c *Core) txFree(ch int) int {
	if c.periodic(ch) {
		return c.pDepth() - c.txUsed(true)
	}
	return c.npDepth() - c.txUsed(false)
}

func (c *Core) epTxDepth(ep int) int {
	if ep == 0 {
		return int(reg.Get(&c.Regs.G.GTXFCFG, TxfcfgDepth))
	}
	return int(reg.Get(&c.Regs.G.DTXFIFO[ep-1], TxfcfgDepth))
}

func (c *Core) epTxFree(ep int) int {
	return c.epTxDepth(ep) - len(c.epTx[ep])
}

// popTx removes a packet of n bytes from a transmit queue. It reports false
// and leaves the queue untouched when fewer words are queued.
func popTx(q *[]uint32, n int) ([]byte, bool) {
	words := (n + 3) / 4
	if len(*q) < words {
		return nil, false
	}
	data := unpackWords((*q)[:words], n)
	*q = (*q)[words:]
	return data, true
}
