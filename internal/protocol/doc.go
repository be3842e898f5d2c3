// Package protocol implements the binary wire protocol of the laser
// projector DAC.
//
// The DAC speaks a little-endian command/response protocol over a single
// persistent TCP byte stream. Each command is one opcode byte plus a
// fixed-layout payload; the device answers every command, in request order,
// with a fixed 22-byte standard response carrying its current status.
//
// # Commands
//
//	Opcode  Command          Payload
//	'?'     ping             none
//	'p'     prepare          none
//	'b'     begin            u16 low-water mark (0), u32 point rate
//	'u'     update           u16 low-water mark (0), u32 point rate
//	'd'     write points     u16 count, then count * 18-byte points
//	's'     stop             none
//	0xFF    emergency stop   none
//
// Each point is nine 16-bit fields in fixed order: control, x (signed),
// y (signed), r, g, b, intensity, reserved1, reserved2.
//
// # Standard response
//
// 22 bytes: response code ('a' = acknowledged), echoed command opcode, then
// a 20-byte status block with the device's protocol revision, light engine
// and playback states, flag words, buffer fullness, point rate, and total
// point count. Bit 0x2 of the playback flags reports a buffer underrun
// since the last status.
//
// # Usage Example - Construction
//
//	cmd, err := protocol.BuildData(points)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = conn.Write(cmd)
//
// # Usage Example - Parsing
//
//	resp, err := protocol.ParseResponse(frame)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !resp.ACK() {
//	    // device rejected the command
//	}
//
// # Response demultiplexing
//
// The transport delivers bytes in arbitrary chunk sizes, not aligned to
// response frames. Demux accumulates inbound bytes and dispatches them to a
// FIFO queue of fixed-size expectations, preserving request/response
// pairing under pipelining:
//
//	d := protocol.NewDemux()
//	d.Expect(protocol.ResponseSize, func(b []byte) { ... })
//	d.Feed(chunkFromTransport)
//
// # Error Handling
//
// Parse functions report framing errors (short input) and construction
// functions report limit violations (oversized batches). The package never
// interprets response codes; that is session policy.
//
// # Thread Safety
//
// All construction and parse functions are stateless and safe for
// concurrent use. Demux is internally synchronized.
package protocol
