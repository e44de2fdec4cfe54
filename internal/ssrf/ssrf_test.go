package ssrf

import (
	"context"
	"errors"
	"net"
	"testing"
)

func newTestChecker() *Checker {
	c := New(DefaultBlockedCIDRs())
	c.resolve = func(_ context.Context, host string) ([]net.IP, error) {
		switch host {
		case "internal.example.com":
			return []net.IP{net.ParseIP("10.0.0.5")}, nil
		case "public.example.com":
			return []net.IP{net.ParseIP("203.0.113.10")}, nil
		default:
			return nil, errors.New("no such host")
		}
	}
	return c
}

func TestCheck_BlocksCloudMetadataLiteralIP(t *testing.T) {
	c := newTestChecker()
	err := c.Check(context.Background(), "http://169.254.169.254/")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestCheck_BlocksResolvedPrivateAddress(t *testing.T) {
	c := newTestChecker()
	err := c.Check(context.Background(), "http://internal.example.com/probe")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestCheck_AllowsPublicAddress(t *testing.T) {
	c := newTestChecker()
	if err := c.Check(context.Background(), "https://public.example.com/health"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheck_RejectsNonHTTPScheme(t *testing.T) {
	c := newTestChecker()
	err := c.Check(context.Background(), "ftp://public.example.com/")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked for non-http scheme, got %v", err)
	}
}

func TestCheck_ResolutionFailureIsNotSSRFBlocked(t *testing.T) {
	c := newTestChecker()
	err := c.Check(context.Background(), "http://does-not-exist.invalid/")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrBlocked) {
		t.Fatal("resolution failure must not be classified as ssrf_blocked")
	}
}
