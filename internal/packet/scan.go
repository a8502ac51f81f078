package packet

import "bytes"

// Scan searches data for valid packets, byte by byte, skipping over false
// magic matches and CRC failures. It returns every packet it could parse,
// in the order found. Scanning the same buffer twice yields the same
// sequence: the function is pure with respect to its input.
func Scan(data []byte) []Packet {
	var packets []Packet
	magic := []byte(Magic)
	offset := 0

	for offset+HeaderSize <= len(data) {
		rel := bytes.Index(data[offset:], magic)
		if rel < 0 {
			break
		}
		pos := offset + rel

		pkt, consumed, err := Deserialize(data[pos:])
		if err != nil {
			offset = pos + 1
			continue
		}

		packets = append(packets, pkt)
		offset = pos + consumed
	}

	return packets
}
