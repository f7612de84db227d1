package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := CheckPassword(hash, pwd); err != nil {
		t.Fatalf("CheckPassword failed when password should match: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, err := m.GenerateToken(3, 17)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if claims.UserID != 3 || claims.SessionID != 17 {
		t.Fatalf("claims mismatch: got user %d session %d", claims.UserID, claims.SessionID)
	}
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Minute).GenerateToken(0, 1)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := NewJWTManager("two", time.Minute).VerifyToken(token); err == nil {
		t.Fatal("token signed with another secret verified")
	}
	if _, err := NewJWTManager("one", time.Minute).VerifyToken("garbage"); err == nil {
		t.Fatal("malformed token verified")
	}
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Second)
	token, err := m.GenerateToken(0, 1)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestJWTManager_Rotation(t *testing.T) {
	// create a manager with two keys and active kid "k2"
	keys := map[string]string{"k1": "secret-one", "k2": "secret-two"}
	m := NewJWTManagerFromKeys(keys, "k2", 5*time.Minute)

	// token created with active kid (k2)
	tkn2, err := m.GenerateToken(1, 1)
	if err != nil {
		t.Fatalf("GenerateToken (k2) failed: %v", err)
	}

	// verify works (should pick k2 via kid header)
	if _, err := m.VerifyToken(tkn2); err != nil {
		t.Fatalf("VerifyToken (k2) failed: %v", err)
	}

	// Create a token signed by the older key (k1) to emulate previously-issued tokens.
	mOld := NewJWTManagerFromKeys(keys, "k1", 5*time.Minute)
	tkn1, err := mOld.GenerateToken(1, 2)
	if err != nil {
		t.Fatalf("GenerateToken (k1) failed: %v", err)
	}

	// Current manager should still verify tokens signed with older key k1
	if _, err := m.VerifyToken(tkn1); err != nil {
		t.Fatalf("VerifyToken (old k1) failed: %v", err)
	}

	// Once k1 is retired its tokens stop verifying
	retired := NewJWTManagerFromKeys(map[string]string{"k2": "secret-two"}, "k2", 5*time.Minute)
	if _, err := retired.VerifyToken(tkn1); err == nil {
		t.Fatal("token signed by retired key verified")
	}
}

func TestParseKeys(t *testing.T) {
	keys, err := ParseKeys("k1:one, k2:two,")
	if err != nil {
		t.Fatalf("ParseKeys failed: %v", err)
	}
	if keys["k1"] != "one" || keys["k2"] != "two" || len(keys) != 2 {
		t.Fatalf("unexpected keys: %v", keys)
	}

	for _, bad := range []string{"", "nokid", ":secret", "kid:"} {
		if _, err := ParseKeys(bad); err == nil {
			t.Fatalf("ParseKeys(%q) should fail", bad)
		}
	}
}
