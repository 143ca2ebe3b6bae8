package signature

import "testing"

func TestVerify(t *testing.T) {
	secret := "test-secret"
	body := []byte(`InvoiceId=abc&Amount=2500.00&Status=Completed`)

	sig := Sign(secret, body)
	if !Verify(secret, body, sig) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	secret := "test-secret"
	body := []byte(`InvoiceId=abc&Amount=2500.00&Status=Completed`)
	sig := Sign(secret, body)

	tampered := []byte(`InvoiceId=abc&Amount=9999.00&Status=Completed`)
	if Verify(secret, tampered, sig) {
		t.Fatal("tampered body accepted with stale signature")
	}
	// the same tampered body with a recomputed signature is fine
	if !Verify(secret, tampered, Sign(secret, tampered)) {
		t.Fatal("recomputed signature rejected")
	}
}

func TestVerifyEdgeCases(t *testing.T) {
	body := []byte("x")
	if Verify("", body, Sign("", body)) {
		t.Error("empty secret must never verify")
	}
	if Verify("s", body, "") {
		t.Error("missing signature must not verify")
	}
	if Verify("s", body, "not base64!!!") {
		t.Error("malformed signature must not verify")
	}
	if Verify("other-secret", body, Sign("s", body)) {
		t.Error("wrong secret must not verify")
	}
}
