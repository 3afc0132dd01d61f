package crypto

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0x00000000000000000000000000000000000000AA ")
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if addr[19] != 0xAA {
		t.Fatalf("unexpected address bytes: %x", addr)
	}

	if _, err := ParseAddress("0x0000000000000000000000000000000000000000"); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := ParseAddress("00000000000000000000000000000000000000AA"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for missing prefix, got %v", err)
	}
	if _, err := ParseAddress("0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for short input, got %v", err)
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	decoded, err := PrivateKeyFromHex(hexutil.Encode(key.Bytes()))
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if decoded.Address() != key.Address() {
		t.Fatalf("address mismatch: %s vs %s", decoded.Address(), key.Address())
	}
	if IsZero(key.Address()) {
		t.Fatalf("derived zero address")
	}
}
