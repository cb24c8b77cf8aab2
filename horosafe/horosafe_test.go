package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL_Schemes(t *testing.T) {
	// WHAT: Only http/https are accepted.
	// WHY: file:// or gopher:// URLs must never reach the fetcher.
	for _, u := range []string{"ftp://example.com/x", "file:///etc/passwd", "javascript:alert(1)"} {
		if err := ValidateURL(u); !errors.Is(err, ErrUnsafeScheme) {
			t.Errorf("%s: got %v, want ErrUnsafeScheme", u, err)
		}
	}
	if err := ValidateURL("https://example.com/data.csv"); err != nil {
		t.Errorf("https URL rejected: %v", err)
	}
}

func TestValidateURL_PrivateIP(t *testing.T) {
	// WHAT: Literal private/loopback/metadata IPs are rejected.
	// WHY: SSRF prevention; resource URLs come from untrusted pages.
	for _, u := range []string{
		"http://127.0.0.1/secret",
		"http://10.1.2.3/",
		"http://192.168.0.10/x",
		"http://169.254.169.254/latest/meta-data/",
	} {
		if err := ValidateURL(u); !errors.Is(err, ErrSSRF) {
			t.Errorf("%s: got %v, want ErrSSRF", u, err)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	// WHAT: Reads up to the limit, errors beyond it.
	// WHY: A hostile resource must not exhaust memory.
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("0123456789AB"), 10); err == nil {
		t.Fatal("expected error for oversized body")
	}
}
