package integrity

import "testing"

func TestCRC32MPEG2KnownValue(t *testing.T) {
	t.Parallel()

	got := CRC32MPEG2([]byte("123456789"))
	const want = 0x0376E6E7
	if got != want {
		t.Errorf("CRC32MPEG2(\"123456789\") = 0x%08X, want 0x%08X", got, want)
	}
}

func TestCRC32MPEG2Empty(t *testing.T) {
	t.Parallel()

	got := CRC32MPEG2(nil)
	const want = 0xFFFFFFFF
	if got != want {
		t.Errorf("CRC32MPEG2(nil) = 0x%08X, want 0x%08X", got, want)
	}
}

func TestPacketCRCRoundtrip(t *testing.T) {
	t.Parallel()

	header := []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00, 0x09, 0x0A}
	payload := []byte("test payload")
	const crcOffset = 4

	crc := PacketCRC32(header, crcOffset, payload)
	if err := VerifyPacketCRC(header, crcOffset, payload, crc); err != nil {
		t.Errorf("VerifyPacketCRC: %v", err)
	}
	if err := VerifyPacketCRC(header, crcOffset, payload, crc^1); err == nil {
		t.Error("VerifyPacketCRC: expected mismatch error for flipped CRC")
	}
}

func TestSHA256Hex(t *testing.T) {
	t.Parallel()

	got := SHA256Hex([]byte("hello"))
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("SHA256Hex(\"hello\") = %s, want %s", got, want)
	}
}
