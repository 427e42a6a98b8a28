package crypto

import (
	"reflect"
	"testing"
)

func TestKeyRing_VerifyKey(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	kr.AddKey(k1)

	msg := []byte("hello world")
	sigHex, err := k1.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	valid, err := kr.VerifyKey("key1", msg, sigHex)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if !valid {
		t.Error("VerifyKey returned false")
	}

	// Test unknown key
	_, err = kr.VerifyKey("unknown", msg, sigHex)
	if err == nil {
		t.Error("VerifyKey should fail for unknown key")
	}
}

func TestKeyRing_Rotation(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	k2, _ := NewEd25519Signer("key2")
	kr.AddKey(k2)
	kr.AddPublicKey(k1.KeyID(), k1.PublicKey())

	if got := kr.KeyIDs(); !reflect.DeepEqual(got, []string{"key1", "key2"}) {
		t.Fatalf("KeyIDs = %v", got)
	}

	msg := []byte("entry")
	sig, _ := k1.Sign(msg)

	valid, err := kr.VerifySignatureType(k1.SignatureType(), msg, sig)
	if err != nil || !valid {
		t.Fatalf("old key signature should verify: valid=%v err=%v", valid, err)
	}

	// A signature from key1 does not verify under key2.
	valid, err = kr.VerifyKey("key2", msg, sig)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if valid {
		t.Error("signature verified under the wrong key")
	}

	kr.RevokeKey("key1")
	if _, err := kr.VerifySignatureType(k1.SignatureType(), msg, sig); err == nil {
		t.Error("revoked key should not verify")
	}
}

func TestKeyRing_VerifySignatureTypeFormat(t *testing.T) {
	kr := NewKeyRing()
	for _, st := range []string{"", "ed25519", "rsa:key1", "ed25519:"} {
		if _, err := kr.VerifySignatureType(st, nil, ""); err == nil {
			t.Errorf("expected format error for %q", st)
		}
	}
}
