package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i)
	}
	addr, err := NewAddress(AutonPrefix, raw)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(AutonPrefix)+"1") {
		t.Fatalf("encoded address %q missing prefix", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: % x", decoded.Bytes())
	}
	if decoded.Prefix() != AutonPrefix {
		t.Fatalf("prefix %q", decoded.Prefix())
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(AutonPrefix, make([]byte, 19)); err == nil {
		t.Fatalf("19-byte address accepted")
	}
	if _, err := NewAddress(AutonPrefix, make([]byte, 32)); err == nil {
		t.Fatalf("32-byte address accepted")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "auto1", "notbech32", "auto1!!!!"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("decoded %q", input)
		}
	}
}

func TestGeneratedKeyDerivesStableAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	first := key.PubKey().Address().String()
	second := key.PubKey().Address().String()
	if first != second {
		t.Fatalf("address derivation not stable: %q vs %q", first, second)
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != first {
		t.Fatalf("restored key derives different address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "node.json")

	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatalf("keystore round trip lost key material")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("wrong passphrase accepted")
	}
}
