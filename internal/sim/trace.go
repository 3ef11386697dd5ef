package sim

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/otg"
)

// Trace records every transaction the host port carries.
type Trace struct {
	Records []otg.Transaction `cbor:"1,keyasint"`
}

// Record appends t. It is installed as the tracer of the host core.
func (t *Trace) Record(tr otg.Transaction) {
	tr.Data = append([]byte(nil), tr.Data...)
	t.Records = append(t.Records, tr)
}

// Len returns the number of recorded transactions.
func (t *Trace) Len() int { return len(t.Records) }

// Reset drops all records.
func (t *Trace) Reset() { t.Records = t.Records[:0] }

// Count returns the number of records with the given handshake.
func (t *Trace) Count(hs otg.Handshake) int {
	n := 0
	for _, r := range t.Records {
		if r.Handshake == hs {
			n++
		}
	}
	return n
}

// Encode returns the trace as canonical CBOR.
func (t *Trace) Encode() ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encode mode")
	}
	b, err := em.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "encode trace")
	}
	return b, nil
}

// DecodeTrace decodes a trace produced by Encode.
func DecodeTrace(b []byte) (*Trace, error) {
	t := &Trace{}
	if err := cbor.Unmarshal(b, t); err != nil {
		return nil, errors.Wrap(err, "decode trace")
	}
	return t, nil
}

// Format renders one transaction as a single line.
func Format(r otg.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%5d ch%-2d %-5s %3d.%d %s", r.Frame, r.Channel, r.Token, r.Address, r.Endpoint, r.Handshake)
	if len(r.Data) > 0 {
		fmt.Fprintf(&b, " [%d] % x", len(r.Data), r.Data[:min(len(r.Data), 16)])
		if len(r.Data) > 16 {
			b.WriteString(" ...")
		}
	}
	return b.String()
}

// WriteTo writes one line per transaction to w.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, r := range t.Records {
		n, err := fmt.Fprintln(w, Format(r))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
